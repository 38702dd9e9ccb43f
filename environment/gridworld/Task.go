package gridworld

// meetingReward is received by every agent once all agents meet
const meetingReward = 1.0

// reward returns the shared reward of the current positions and
// whether all agents have met
func (r *Rendezvous) reward() (float64, bool) {
	var total float64
	pairs := 0
	for i := 0; i < r.agents; i++ {
		for j := i + 1; j < r.agents; j++ {
			total += float64(manhattan(r.positions[i], r.positions[j]))
			pairs++
		}
	}
	reward := -total / float64(pairs) / float64(r.size)

	if r.together() {
		return reward + meetingReward, true
	}
	return reward, false
}

// together returns whether all agents share a cell
func (r *Rendezvous) together() bool {
	for _, p := range r.positions[1:] {
		if p != r.positions[0] {
			return false
		}
	}
	return true
}

// features returns the observation, unary and binary features of every
// agent
func (r *Rendezvous) features() (obs, unary, binary [][]float64) {
	scale := float64(r.size - 1)
	obs = make([][]float64, r.agents)
	unary = make([][]float64, r.agents)
	binary = make([][]float64, r.agents)

	for i, p := range r.positions {
		own := []float64{float64(p.x) / scale, float64(p.y) / scale}
		obs[i] = append(obs[i], own...)
		unary[i] = append(unary[i], own...)

		for j, q := range r.positions {
			if j == i {
				continue
			}
			dx := float64(q.x-p.x) / scale
			dy := float64(q.y-p.y) / scale
			obs[i] = append(obs[i], dx, dy)
			unary[i] = append(unary[i], float64(q.x)/scale, float64(q.y)/scale)
			binary[i] = append(binary[i], dx, dy,
				float64(manhattan(p, q))/(2*scale))
		}
	}
	return obs, unary, binary
}

func manhattan(p, q position) int {
	return abs(p.x-q.x) + abs(p.y-q.y)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

package retention

// Evaluation is a policy bound to a single evaluation date. The date is
// captured once so that every tier in a run sees the same "today".
type Evaluation struct {
	policy *Policy
	today  Date
}

// Decision is the outcome of evaluating one tier.
type Decision struct {
	Tier      Tier `json:"tier"`
	Today     Date `json:"today"`
	Triggered bool `json:"triggered"`
	Count     int  `json:"count"`
	Threshold Date `json:"threshold"`
}

func (p *Policy) Evaluate(today Date) Evaluation {
	return Evaluation{policy: p, today: today}
}

func (e Evaluation) Today() Date { return e.today }
func (e Evaluation) Policy() *Policy { return e.policy }

func (e Evaluation) Decide(tier Tier) (Decision, error) {
	triggered, err := e.policy.ShouldPrune(tier, e.today)
	if err != nil {
		return Decision{}, err
	}
	threshold, err := e.policy.AgeThreshold(tier, e.today)
	if err != nil {
		return Decision{}, err
	}
	count, _ := e.policy.counts.For(tier)
	return Decision{
		Tier:      tier,
		Today:     e.today,
		Triggered: triggered,
		Count:     count,
		Threshold: threshold,
	}, nil
}

// Decisions evaluates every tier.
func (e Evaluation) Decisions() []Decision {
	out := make([]Decision, 0, len(Tiers()))
	for _, tier := range Tiers() {
		// Tiers() only yields valid tiers
		d, _ := e.Decide(tier)
		out = append(out, d)
	}
	return out
}

// Classify decides tier and partitions snapshots against its threshold. A
// tier that is not triggered today retains everything.
func (e Evaluation) Classify(tier Tier, snapshots []Snapshot) (Decision, Classification, error) {
	d, err := e.Decide(tier)
	if err != nil {
		return Decision{}, Classification{}, err
	}
	if !d.Triggered {
		retain := make([]Snapshot, len(snapshots))
		copy(retain, snapshots)
		return d, Classification{Retain: retain, Expire: []Snapshot{}}, nil
	}
	return d, Classify(snapshots, d.Threshold), nil
}

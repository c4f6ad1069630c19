package retention

// Snapshot is a collaborator's view of one backup artifact.
type Snapshot struct {
	// ID identifies the artifact to the driver that listed it, such as a
	// file path or an object key.
	ID       string `json:"id"`
	Location string `json:"location"`
	Created  Date   `json:"created"`
	Size     int64  `json:"size"`
}

// Classification partitions a snapshot list. Every input appears in exactly
// one of Retain or Expire, in input order.
type Classification struct {
	Retain []Snapshot `json:"retain"`
	Expire []Snapshot `json:"expire"`
}

// Classify expires every snapshot created strictly before threshold.
func Classify(snapshots []Snapshot, threshold Date) Classification {
	c := Classification{
		Retain: make([]Snapshot, 0, len(snapshots)),
		Expire: make([]Snapshot, 0),
	}
	for _, s := range snapshots {
		if s.Created.Before(threshold) {
			c.Expire = append(c.Expire, s)
			continue
		}
		c.Retain = append(c.Retain, s)
	}
	return c
}

package progress

// Reporter publishes the progress of a single job. A nil Reporter discards everything.
type Reporter struct {
	tracker *Tracker
	id      string
}

// Reporter returns the publisher of id, or nil when id is empty or unknown.
func (t *Tracker) Reporter(id string) *Reporter {
	if t == nil || id == "" {
		return nil
	}
	if _, ok := t.Owner(id); !ok {
		return nil
	}
	return &Reporter{tracker: t, id: id}
}

func (r *Reporter) Report(progress int, phase string, eta *int) {
	if r == nil {
		return
	}
	r.tracker.Publish(r.id, Update{Progress: progress, Phase: phase, EtaSeconds: eta})
}

func (r *Reporter) Done(phase string) {
	if r == nil {
		return
	}
	r.tracker.Publish(r.id, Update{Progress: 100, Phase: phase, EtaSeconds: Seconds(0), Done: true})
}

// Fail ends the job; progress is kept where it stopped.
func (r *Reporter) Fail(phase string) {
	if r == nil {
		return
	}
	last, _ := r.tracker.Latest(r.id)
	r.tracker.Publish(r.id, Update{Progress: last.Progress, Phase: phase, Done: true})
}

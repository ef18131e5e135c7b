package retention

// Mode is the extent of cleanup applied to one candidate.
type Mode string

const (
	// ModeFull removes the run directory entirely.
	ModeFull Mode = "full"
	// ModeArtifacts removes artifact, phase, output, and session
	// subtrees, keeping run state and the event log.
	ModeArtifacts Mode = "artifacts"
	// ModeLogs removes only event-log files and their rotations.
	ModeLogs Mode = "logs"
)

// DetermineMode maps a candidate's accumulated reasons to a cleanup
// mode. Any hard reason forces a full delete; a single soft reason maps
// to its partial mode; multiple soft reasons escalate to full.
func DetermineMode(c Candidate) Mode {
	for _, r := range c.Reasons {
		if r.Reason.hard() {
			return ModeFull
		}
	}
	if len(c.Reasons) == 1 {
		switch c.Reasons[0].Reason {
		case ReasonArtifact:
			return ModeArtifacts
		case ReasonAge:
			return ModeLogs
		}
	}
	return ModeFull
}

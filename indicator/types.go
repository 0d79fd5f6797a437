package indicator

// Cue is a named feedback event.
type Cue string

const (
	CueStart      Cue = "start"      // ticket moved todo -> doing
	CueComplete   Cue = "complete"   // ticket moved doing -> done
	CueRegistered Cue = "registered" // new card enrolled
	CueFailure    Cue = "failure"    // dwell rejected or the side effect failed
)

// Cues lists every cue.
var Cues = []Cue{CueStart, CueComplete, CueRegistered, CueFailure}

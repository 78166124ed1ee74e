// Package audio implements the small CD-DA play/pause/resume state
// machine the dispatcher (C8) preempts whenever a non-audio command
// arrives. Grounded on the AUDIO_STATUS enum in mmc-packet-commands.h
// and the play/pause handling in device-commands.c; the real engine
// drives an actual audio output thread, which is out of scope here —
// this tracks only the status byte and address range PLAY/PAUSE/RESUME
// and READ SUBCHANNEL observe.
package audio

// Status mirrors enum AUDIO_STATUS.
type Status byte

const (
	StatusUnsupported Status = 0x00
	StatusPlaying     Status = 0x11
	StatusPaused      Status = 0x12
	StatusCompleted   Status = 0x13
	StatusError       Status = 0x14
	StatusNoStatus    Status = 0x15
)

// Player is the per-device audio-play state.
type Player struct {
	status     Status
	startLBA   int
	endLBA     int
}

// NewPlayer returns a player in the "no status" state, matching a
// freshly initialized device that has never been told to play audio.
func NewPlayer() *Player {
	return &Player{status: StatusNoStatus}
}

// Status reports the current play state.
func (p *Player) Status() Status { return p.status }

// Play begins playback across [start, end), used by PLAY AUDIO(10/12/MSF).
func (p *Player) Play(start, end int) {
	p.startLBA, p.endLBA = start, end
	p.status = StatusPlaying
}

// Pause suspends playback without losing position; a no-op outside
// the Playing state.
func (p *Player) Pause() {
	if p.status == StatusPlaying {
		p.status = StatusPaused
	}
}

// Resume continues playback from a paused state.
func (p *Player) Resume() {
	if p.status == StatusPaused {
		p.status = StatusPlaying
	}
}

// Stop halts playback unconditionally; called by the dispatcher before
// any audio-interrupting command runs (spec §4.6 dispatch wrapper).
func (p *Player) Stop() {
	if p.status == StatusPlaying || p.status == StatusPaused {
		p.status = StatusCompleted
	}
}

// Range returns the currently playing address range.
func (p *Player) Range() (start, end int) { return p.startLBA, p.endLBA }

// IsActive reports whether the dispatcher must stop this player before
// running an audio-interrupting command.
func (p *Player) IsActive() bool {
	return p.status == StatusPlaying || p.status == StatusPaused
}

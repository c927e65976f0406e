package pipeline

import "fmt"

// Stage é o estado da máquina de liquidação.
type Stage string

const (
	StageNotStarted         Stage = "not_started"
	StageBackingUp          Stage = "backing_up"
	StageRecordingPending   Stage = "recording_pending"
	StageSettling           Stage = "settling"
	StageCrediting          Stage = "crediting"
	StageRecordingCompleted Stage = "recording_completed"
	StageVerifying          Stage = "verifying"
	StageCompleted          Stage = "completed"
	StageFailed             Stage = "failed"
)

// sequência feliz; qualquer estágio não terminal pode ir para Failed
var next = map[Stage]Stage{
	StageNotStarted:         StageBackingUp,
	StageBackingUp:          StageRecordingPending,
	StageRecordingPending:   StageSettling,
	StageSettling:           StageCrediting,
	StageCrediting:          StageRecordingCompleted,
	StageRecordingCompleted: StageVerifying,
	StageVerifying:          StageCompleted,
}

func (s Stage) Terminal() bool { return s == StageCompleted || s == StageFailed }

// CanTransition valida uma transição da máquina de estados.
func CanTransition(from, to Stage) bool {
	if from.Terminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	return next[from] == to
}

// tracker guarda o estado corrente e a trilha percorrida.
type tracker struct {
	current Stage
	trail   []Stage
}

func newTracker() *tracker {
	return &tracker{current: StageNotStarted, trail: []Stage{StageNotStarted}}
}

func (t *tracker) advance(to Stage) {
	if !CanTransition(t.current, to) {
		// erro de programação: a sequência é fixa neste pacote
		panic(fmt.Sprintf("pipeline: invalid transition %s -> %s", t.current, to))
	}
	t.current = to
	t.trail = append(t.trail, to)
}

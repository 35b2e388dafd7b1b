package voice

import (
	"encoding/binary"
	"math"
	"sync"
)

// InterruptMonitor watches the microphone stream for voice energy while the
// assistant is speaking. When armed, a sustained burst of energy above the
// threshold fires the trigger callback exactly once per arming.
type InterruptMonitor struct {
	// Threshold is the RMS floor a 10ms frame must exceed to count as voice.
	Threshold float64
	// WindowFrames is the number of recent frames voted over.
	WindowFrames int
	// TriggerRatio is the fraction of positive votes required to fire.
	TriggerRatio float64

	onTrigger func()

	mu    sync.Mutex
	armed bool
	votes []bool
}

// NewInterruptMonitor builds a monitor with the given trigger callback.
func NewInterruptMonitor(onTrigger func()) *InterruptMonitor {
	return &InterruptMonitor{
		Threshold:    300.0,
		WindowFrames: 8, // ~80ms of audio
		TriggerRatio: 2.0 / 3.0,
		onTrigger:    onTrigger,
	}
}

// Arm enables interrupt detection and clears the vote window.
func (m *InterruptMonitor) Arm() {
	m.mu.Lock()
	m.armed = true
	m.votes = m.votes[:0]
	m.mu.Unlock()
}

// Disarm disables interrupt detection.
func (m *InterruptMonitor) Disarm() {
	m.mu.Lock()
	m.armed = false
	m.votes = m.votes[:0]
	m.mu.Unlock()
}

// Armed reports whether the monitor is currently watching for interrupts.
func (m *InterruptMonitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Feed accepts 16 kHz mono 16-bit little-endian PCM of arbitrary length and
// segments it into 10ms frames for voting.
func (m *InterruptMonitor) Feed(pcm []byte) {
	const samplesPerFrame = 160 // 10ms at 16kHz
	for off := 0; off+samplesPerFrame*2 <= len(pcm); off += samplesPerFrame * 2 {
		m.onFrame(pcm[off : off+samplesPerFrame*2])
	}
}

func (m *InterruptMonitor) onFrame(frame []byte) {
	var sum float64
	n := len(frame) / 2
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(frame[i*2 : i*2+2])))
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(n))

	m.mu.Lock()
	if !m.armed {
		m.mu.Unlock()
		return
	}
	m.votes = append(m.votes, rms >= m.Threshold)
	if len(m.votes) > m.WindowFrames {
		m.votes = m.votes[len(m.votes)-m.WindowFrames:]
	}
	hot := 0
	for _, b := range m.votes {
		if b {
			hot++
		}
	}
	fire := len(m.votes) >= m.WindowFrames/2 &&
		float64(hot)/float64(len(m.votes)) >= m.TriggerRatio
	if fire {
		m.armed = false
		m.votes = m.votes[:0]
	}
	m.mu.Unlock()

	if fire && m.onTrigger != nil {
		m.onTrigger()
	}
}

// Package session contains the turn orchestrator: the state machine that
// sequences wake detection, recording, the tool loop, and interruptible
// playback into conversational turns.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/earshot-ai/earshot/pkg/assistant/audio"
	"github.com/earshot-ai/earshot/pkg/assistant/detect"
	"github.com/earshot-ai/earshot/pkg/assistant/llm"
	"github.com/earshot-ai/earshot/pkg/assistant/memory"
	"github.com/earshot-ai/earshot/pkg/assistant/record"
	"github.com/earshot-ai/earshot/pkg/assistant/speech"
	"github.com/earshot-ai/earshot/pkg/assistant/toolloop"
)

// States of the orchestrator. Exactly one is active at a time; SHUTDOWN is
// terminal.
const (
	StateIdle      = "IDLE"
	StateListening = "LISTENING"
	StateThinking  = "THINKING"
	StateSpeaking  = "SPEAKING"
	StateShutdown  = "SHUTDOWN"
)

// MetricsSink receives orchestrator-level observations. A nil sink is
// valid.
type MetricsSink interface {
	StateChanged(state string)
	TurnCompleted()
	EventDropped()
}

// Wake pairs a wake classifier with the label reported when it fires. The
// pause phrase is just another wake entry whose label matches the
// configured pause phrase.
type Wake struct {
	Label    string
	Listener *detect.WakeListener
}

// Dependencies are the collaborators the orchestrator drives. All are
// required except Metrics.
type Dependencies struct {
	Source      audio.Source
	Player      audio.Player
	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer
	Runner      *toolloop.Runner
	Profiles    *memory.ProfileStore
	Wakes       []Wake
	Metrics     MetricsSink
	Logger      *slog.Logger
}

// Config is the orchestrator's fixed configuration. SilenceDuration and
// ProactivityLevel are only the initial values; both are mutable at runtime
// through UpdateConfig.
type Config struct {
	ArtifactsDir     string
	SampleRateHz     int
	SilenceThreshold float64
	SilenceDuration  time.Duration
	MaxRecording     time.Duration
	WakePollInterval time.Duration
	PausePhrase      string
	StopPhrase       string
	GoodbyePhrase    string
	ProactivityLevel float64
	ProactiveMinIdle time.Duration
	MaxHistoryLen    int
	BargeInPreroll   int
	EventQueueSize   int
}

func (c *Config) fillDefaults() {
	if c.SampleRateHz == 0 {
		c.SampleRateHz = 16000
	}
	if c.SilenceThreshold == 0 {
		c.SilenceThreshold = 0.01
	}
	if c.SilenceDuration == 0 {
		c.SilenceDuration = 1500 * time.Millisecond
	}
	if c.MaxRecording == 0 {
		c.MaxRecording = 30 * time.Second
	}
	if c.WakePollInterval == 0 {
		c.WakePollInterval = 500 * time.Millisecond
	}
	if c.GoodbyePhrase == "" {
		c.GoodbyePhrase = "goodbye"
	}
	if c.StopPhrase == "" {
		c.StopPhrase = "thank you"
	}
	if c.ProactiveMinIdle == 0 {
		c.ProactiveMinIdle = 30 * time.Second
	}
	if c.MaxHistoryLen == 0 {
		c.MaxHistoryLen = 40
	}
	if c.BargeInPreroll == 0 {
		c.BargeInPreroll = 8
	}
	if c.EventQueueSize == 0 {
		c.EventQueueSize = 128
	}
}

// ConfigUpdate carries the runtime-mutable knobs. Nil fields are left
// unchanged.
type ConfigUpdate struct {
	SilenceDuration  *time.Duration
	ProactivityLevel *float64
}

// Orchestrator is one conversational session. Run owns all session state;
// the exported command methods only post signals to it.
type Orchestrator struct {
	deps Dependencies
	cfg  Config

	id     string
	logger *slog.Logger

	events   chan Event
	wakeCh   chan string
	state    atomic.Value // string
	shutdown atomic.Bool

	mu          sync.Mutex
	silence     time.Duration
	proactivity float64

	evMu     sync.Mutex
	evClosed bool

	history         []llm.Message
	lastInteraction time.Time
	rng             *rand.Rand
}

func New(deps Dependencies, cfg Config) (*Orchestrator, error) {
	cfg.fillDefaults()
	if deps.Source == nil || deps.Player == nil || deps.Transcriber == nil ||
		deps.Synthesizer == nil || deps.Runner == nil || deps.Profiles == nil {
		return nil, fmt.Errorf("session: missing required dependency")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		deps:        deps,
		cfg:         cfg,
		id:          uuid.NewString(),
		events:      make(chan Event, cfg.EventQueueSize),
		wakeCh:      make(chan string, 1),
		silence:     cfg.SilenceDuration,
		proactivity: cfg.ProactivityLevel,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	o.logger = logger.With("session_id", o.id)
	o.state.Store(StateIdle)
	return o, nil
}

// ID is the session identifier.
func (o *Orchestrator) ID() string { return o.id }

// Events is the outbound status stream. The hosting transport owns fan-out;
// a slow host loses events rather than stalling the session.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// State reports the current state.
func (o *Orchestrator) State() string { return o.state.Load().(string) }

// TriggerWake injects a manual wake. Honored only while idle; triggers
// arriving mid-turn are dropped.
func (o *Orchestrator) TriggerWake() {
	if o.State() != StateIdle {
		o.logger.Debug("manual wake ignored mid-turn")
		return
	}
	select {
	case o.wakeCh <- "Manual Trigger":
	default:
	}
}

// UpdateConfig changes the runtime-mutable knobs; read fresh at the start
// of each idle and listening cycle.
func (o *Orchestrator) UpdateConfig(u ConfigUpdate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if u.SilenceDuration != nil && *u.SilenceDuration > 0 {
		o.silence = *u.SilenceDuration
		o.logger.Info("silence duration updated", "silence_duration", o.silence)
	}
	if u.ProactivityLevel != nil && *u.ProactivityLevel >= 0 && *u.ProactivityLevel <= 1 {
		o.proactivity = *u.ProactivityLevel
		o.logger.Info("proactivity level updated", "proactivity_level", o.proactivity)
	}
}

// UpdateKnowledge applies a manual whole-field profile edit and announces
// the new profile on the event stream.
func (o *Orchestrator) UpdateKnowledge(u memory.Update) (memory.Profile, error) {
	profile, err := o.deps.Profiles.Update(u)
	if err != nil {
		return memory.Profile{}, err
	}
	o.emit(Event{Status: EventKnowledgeUpdate, Profile: &profile})
	return profile, nil
}

// Profile returns the current user profile.
func (o *Orchestrator) Profile() memory.Profile { return o.deps.Profiles.Profile() }

// Shutdown latches the level-triggered shutdown flag. The session observes
// it at state boundaries; in-flight blocking calls finish first.
func (o *Orchestrator) Shutdown() { o.shutdown.Store(true) }

func (o *Orchestrator) down() bool { return o.shutdown.Load() }

func (o *Orchestrator) runtimeConfig() (silence time.Duration, proactivity float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.silence, o.proactivity
}

func (o *Orchestrator) setState(s string) {
	o.state.Store(s)
	if o.deps.Metrics != nil {
		o.deps.Metrics.StateChanged(s)
	}
	o.logger.Info("state", "state", s)
}

// emit posts an event without blocking. Safe after Run has returned:
// commands can still arrive from the gateway while it drains.
func (o *Orchestrator) emit(ev Event) {
	o.evMu.Lock()
	defer o.evMu.Unlock()
	if o.evClosed {
		return
	}
	select {
	case o.events <- ev:
	default:
		if o.deps.Metrics != nil {
			o.deps.Metrics.EventDropped()
		}
	}
}

func (o *Orchestrator) closeEvents() {
	o.evMu.Lock()
	defer o.evMu.Unlock()
	if !o.evClosed {
		o.evClosed = true
		close(o.events)
	}
}

// Run executes the state machine until shutdown. It must be called exactly
// once.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.lastInteraction = time.Now()
	defer o.closeEvents()

	for !o.down() && ctx.Err() == nil {
		o.setState(StateIdle)
		o.emit(Event{Status: EventIdle})

		label, proactive, ok := o.waitForWake(ctx)
		if !ok {
			break
		}

		var transcript string
		if proactive {
			o.logger.Info("proactive trigger", "idle", time.Since(o.lastInteraction))
			o.emit(Event{Status: EventWakeWord, WakeWord: "Proactive"})
			transcript = "System: The user has been idle. Initiate a conversation based on their interests."
		} else {
			if o.cfg.PausePhrase != "" && strings.Contains(strings.ToLower(label), o.cfg.PausePhrase) {
				o.logger.Info("pause phrase heard, staying idle", "label", label)
				continue
			}
			o.emit(Event{Status: EventWakeWord, WakeWord: label})

			text, next := o.listen(ctx)
			switch next {
			case StateShutdown:
				o.shutdown.Store(true)
				continue
			case StateIdle:
				continue
			}
			transcript = text
		}

		reply, ok := o.think(ctx, transcript)
		if !ok {
			continue
		}
		if o.down() {
			continue
		}

		o.speak(ctx, reply)
		o.lastInteraction = time.Now()
		if o.deps.Metrics != nil {
			o.deps.Metrics.TurnCompleted()
		}
	}

	o.setState(StateShutdown)
	o.emit(Event{Status: EventShutdown})
	o.logger.Info("session ended")
	return nil
}

// waitForWake polls the frame stream against all wake classifiers, watching
// for manual triggers and the proactive deadline. Returns ok=false on
// shutdown.
func (o *Orchestrator) waitForWake(ctx context.Context) (label string, proactive bool, ok bool) {
	for _, w := range o.deps.Wakes {
		w.Listener.Reset()
	}

	_, level := o.runtimeConfig()
	var deadline time.Time
	if delay, armed := proactiveDelay(o.rng, level, o.cfg.ProactiveMinIdle); armed {
		deadline = o.lastInteraction.Add(delay)
	}

	for {
		if o.down() || ctx.Err() != nil {
			return "", false, false
		}
		select {
		case label := <-o.wakeCh:
			return label, false, true
		default:
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return "", true, true
		}

		f, got := audio.NextFrame(ctx, o.deps.Source, o.cfg.WakePollInterval)
		if !got {
			continue
		}
		for _, w := range o.deps.Wakes {
			if w.Listener.Observe(f) {
				return w.Label, false, true
			}
		}
	}
}

// listen records one command and transcribes it. The returned state is
// StateThinking with a usable transcript, StateIdle to abandon the turn, or
// StateShutdown when the termination phrase was heard.
func (o *Orchestrator) listen(ctx context.Context) (string, string) {
	o.setState(StateListening)
	o.emit(Event{Status: EventListening})

	silence, _ := o.runtimeConfig()
	u, err := record.UntilSilence(ctx, o.deps.Source, record.Options{
		SampleRateHz: o.cfg.SampleRateHz,
		Threshold:    o.cfg.SilenceThreshold,
		Silence:      silence,
		MaxDuration:  o.cfg.MaxRecording,
		OnLevel: func(level float64) {
			o.emit(Event{Status: EventAudioLevel, Level: level})
		},
	})
	if err != nil {
		o.fail("recording failed", err)
		return "", StateIdle
	}
	if o.down() {
		return "", StateShutdown
	}
	if u == nil {
		o.logger.Info("no audio recorded")
		return "", StateIdle
	}
	o.saveArtifact(u, "utterance")

	transcript, err := o.deps.Transcriber.Transcribe(ctx, u)
	if err != nil {
		o.fail("transcription failed", err)
		return "", StateIdle
	}
	if strings.TrimSpace(transcript) == "" {
		o.logger.Info("empty transcript")
		return "", StateIdle
	}

	o.logger.Info("transcript", "text", transcript)
	o.emit(Event{Status: EventTranscript, Text: transcript})

	if strings.Contains(strings.ToLower(transcript), o.cfg.GoodbyePhrase) {
		o.logger.Info("termination phrase heard")
		return "", StateShutdown
	}
	return transcript, StateThinking
}

// think runs the tool loop for the transcript and folds its history delta
// into the session history.
func (o *Orchestrator) think(ctx context.Context, transcript string) (string, bool) {
	o.setState(StateThinking)

	runner := o.deps.Runner
	runner.Stop = o.down
	runner.OnThinking = func(turn int) {
		o.emit(Event{Status: EventThinking, Turn: turn})
	}
	runner.OnKnowledge = func(profile memory.Profile, extraction memory.Extraction) {
		o.emit(Event{Status: EventKnowledgeUpdate, Profile: &profile, Extraction: &extraction})
	}

	res, err := runner.Run(ctx, transcript, o.history)
	if err != nil {
		o.fail("turn failed", err)
		return "", false
	}
	o.history = append(o.history, res.History...)
	o.trimHistory()

	if res.Reply == "" {
		return "", false
	}
	o.logger.Info("reply ready", "turns", res.Turns, "chars", len(res.Reply))
	o.emit(Event{Status: EventResponse, Text: res.Reply})
	return res.Reply, true
}

// speak synthesizes and plays the reply while watching for barge-in. Three
// outcomes: playback completes, the user interrupts, or shutdown.
func (o *Orchestrator) speak(ctx context.Context, reply string) {
	o.setState(StateSpeaking)
	o.emit(Event{Status: EventSpeaking})
	o.history = append(o.history, llm.Message{Role: "agent", Content: reply})
	o.trimHistory()

	pcm, rate, err := o.deps.Synthesizer.Synthesize(ctx, reply)
	if err != nil {
		o.fail("synthesis failed", err)
		return
	}
	if len(pcm) == 0 {
		return
	}
	o.saveArtifact(&audio.Utterance{
		Samples:      audio.BytesToSamples(pcm),
		SampleRateHz: rate,
		Started:      time.Now(),
	}, "response")

	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- o.deps.Player.Play(playCtx, pcm, rate)
	}()

	det := detect.NewSpeechDetector(o.cfg.SilenceThreshold, o.cfg.BargeInPreroll)
	for {
		select {
		case <-done:
			return
		case <-det.Detected():
			o.logger.Info("barge-in detected")
			o.deps.Player.Stop()
			cancel()
			<-done
			o.handleInterruption(ctx, det)
			return
		default:
		}
		if o.down() {
			o.deps.Player.Stop()
			cancel()
			<-done
			return
		}
		if f, got := audio.NextFrame(ctx, o.deps.Source, 100*time.Millisecond); got {
			det.Observe(f)
		}
	}
}

// handleInterruption captures the interrupting utterance seeded with the
// detector's pre-buffer and checks it for control phrases. Anything else is
// discarded; an interruption does not start a new turn.
func (o *Orchestrator) handleInterruption(ctx context.Context, det *detect.SpeechDetector) {
	u, err := record.UntilSilence(ctx, o.deps.Source, record.Options{
		SampleRateHz: o.cfg.SampleRateHz,
		Threshold:    o.cfg.SilenceThreshold,
		Silence:      time.Second,
		MaxDuration:  o.cfg.MaxRecording,
		Prefix:       det.Buffer(),
	})
	if err != nil || u == nil {
		return
	}
	o.saveArtifact(u, "interruption")

	text, err := o.deps.Transcriber.Transcribe(ctx, u)
	if err != nil {
		o.fail("interruption transcription failed", err)
		return
	}
	lower := strings.ToLower(text)
	o.logger.Info("interruption", "text", text)
	switch {
	case o.cfg.StopPhrase != "" && strings.Contains(lower, o.cfg.StopPhrase):
		o.logger.Info("stop phrase heard")
	case strings.Contains(lower, o.cfg.GoodbyePhrase):
		o.logger.Info("termination phrase heard during playback")
		o.shutdown.Store(true)
	}
}

func (o *Orchestrator) trimHistory() {
	if over := len(o.history) - o.cfg.MaxHistoryLen; over > 0 {
		o.history = o.history[over:]
	}
}

func (o *Orchestrator) saveArtifact(u *audio.Utterance, prefix string) {
	if o.cfg.ArtifactsDir == "" {
		return
	}
	path, err := u.SaveWAV(o.cfg.ArtifactsDir, prefix)
	if err != nil {
		o.logger.Warn("artifact save failed", "error", err)
		return
	}
	o.logger.Debug("artifact saved", "path", path)
}

// fail reports a turn-abandoning error: logged, surfaced as an error event,
// never fatal to the session.
func (o *Orchestrator) fail(msg string, err error) {
	o.logger.Error(msg, "error", err)
	o.emit(Event{Status: EventError, Message: fmt.Sprintf("%s: %v", msg, err)})
}

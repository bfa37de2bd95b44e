// Package loop schedules each agent's decision cycle on its own
// goroutine, exposing pause/resume/status control both locally (the
// metrics package's HTTP surface) and, when configured, over NATS so an
// external operator process can drive a running agent without sharing
// memory with it. Grounded on the teacher's BaseAgent run-loop and
// NATS control-topic pattern, generalized from one hardcoded agent to a
// map of independently scheduled loops.
package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/kestrel-trading/agentrader/internal/cycle"
	"github.com/kestrel-trading/agentrader/internal/metrics"
	"github.com/kestrel-trading/agentrader/internal/model"
)

// pollInterval bounds how long a loop sleeps between checks of its
// control channel, so Pause/Resume/Stop land within a second instead of
// waiting out a full cycle interval.
const pollInterval = time.Second

type controlSignal int

const (
	signalPause controlSignal = iota
	signalResume
	signalStop
)

// Loop is the scheduling state for one agent's decision cycle.
type Loop struct {
	agentID  string
	runner   *cycle.Runner
	calendar cycle.HolidayCalendar
	interval time.Duration
	company  model.Company

	mu        sync.Mutex
	agent     model.AgentConfig
	state     model.AgentState
	loopState model.LoopState

	control chan controlSignal
	done    chan struct{}

	log zerolog.Logger
}

// Manager owns every agent's Loop and implements metrics.LoopController.
type Manager struct {
	mu    sync.RWMutex
	loops map[string]*Loop

	nats             *nats.Conn
	heartbeatSubject string

	log     zerolog.Logger
	metrics *metrics.Registry
}

// NewManager builds an empty Manager. Loops are added with Start.
func NewManager(reg *metrics.Registry, log zerolog.Logger) *Manager {
	return &Manager{
		loops:   make(map[string]*Loop),
		log:     log.With().Str("component", "loop_manager").Logger(),
		metrics: reg,
	}
}

// ConnectNATS wires an optional control-plane transport: pause/resume
// events published on controlSubject are applied exactly as a local
// /pause or /resume HTTP call would be, and every status transition is
// echoed onto heartbeatSubject. A Manager that never calls this still
// works entirely through its in-process Pause/Resume/Status methods.
func (m *Manager) ConnectNATS(url, controlSubject, heartbeatSubject string) error {
	nc, err := nats.Connect(url)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	if _, err := nc.Subscribe(controlSubject, m.handleControlMessage); err != nil {
		nc.Close()
		return fmt.Errorf("subscribe control subject %s: %w", controlSubject, err)
	}
	m.nats = nc
	m.heartbeatSubject = heartbeatSubject
	m.log.Info().Str("url", url).Str("subject", controlSubject).Msg("connected to nats control plane")
	return nil
}

// Close releases the NATS connection, if one was established.
func (m *Manager) Close() {
	if m.nats != nil {
		m.nats.Close()
	}
}

type controlEvent struct {
	Event   string `json:"event"`
	AgentID string `json:"agent_id"`
}

func (m *Manager) handleControlMessage(msg *nats.Msg) {
	var evt controlEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		m.log.Error().Err(err).Msg("malformed control event")
		return
	}

	var err error
	switch evt.Event {
	case "pause":
		err = m.Pause(evt.AgentID)
	case "resume":
		err = m.Resume(evt.AgentID)
	default:
		m.log.Warn().Str("event", evt.Event).Msg("unknown control event")
		return
	}
	if err != nil {
		m.log.Error().Err(err).Str("agent_id", evt.AgentID).Str("event", evt.Event).Msg("control event failed")
	}
}

func (m *Manager) publishHeartbeat(agentID string, status model.LoopStatus) {
	if m.nats == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{"agent_id": agentID, "status": string(status)})
	if err != nil {
		return
	}
	_ = m.nats.Publish(m.heartbeatSubject, payload)
}

// Start launches a new goroutine running agent's decision cycle every
// interval, starting from state. A loop already running for this agent
// is left untouched: callers that want to change its config must Stop
// it first.
func (m *Manager) Start(ctx context.Context, agent model.AgentConfig, interval time.Duration, state model.AgentState, company model.Company, runner *cycle.Runner, calendar cycle.HolidayCalendar) {
	m.mu.Lock()
	if _, exists := m.loops[agent.ID]; exists {
		m.mu.Unlock()
		return
	}

	l := &Loop{
		agentID:  agent.ID,
		runner:   runner,
		calendar: calendar,
		interval: interval,
		company:  company,
		agent:    agent,
		state:    state,
		loopState: model.LoopState{
			AgentID:         agent.ID,
			Status:          model.LoopRunning,
			StartedAt:       time.Now(),
			IntervalSeconds: int(interval.Seconds()),
		},
		control: make(chan controlSignal, 1),
		done:    make(chan struct{}),
		log:     m.log.With().Str("agent_id", agent.ID).Logger(),
	}
	m.loops[agent.ID] = l
	m.mu.Unlock()

	m.setGauge(agent.ID, model.LoopRunning)
	go m.run(ctx, l)
}

// Pause signals a running loop to stop executing cycles without tearing
// down its goroutine or state.
func (m *Manager) Pause(agentID string) error {
	l, err := m.get(agentID)
	if err != nil {
		return err
	}
	select {
	case l.control <- signalPause:
	default:
	}
	return nil
}

// Resume signals a paused loop to resume executing cycles.
func (m *Manager) Resume(agentID string) error {
	l, err := m.get(agentID)
	if err != nil {
		return err
	}
	select {
	case l.control <- signalResume:
	default:
	}
	return nil
}

// Stop signals a loop to exit and waits for its goroutine to finish.
func (m *Manager) Stop(agentID string) error {
	l, err := m.get(agentID)
	if err != nil {
		return err
	}
	select {
	case l.control <- signalStop:
	default:
	}
	<-l.done

	m.mu.Lock()
	delete(m.loops, agentID)
	m.mu.Unlock()
	return nil
}

// StopAll signals every running loop to exit and waits for all of them.
func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.loops))
	for id := range m.loops {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Stop(id); err != nil {
			m.log.Error().Err(err).Str("agent_id", id).Msg("error stopping loop")
		}
	}
}

// Status returns a snapshot of one agent's LoopState.
func (m *Manager) Status(agentID string) (any, error) {
	l, err := m.get(agentID)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loopState, nil
}

// companyRoster returns the AgentConfig of every loop currently managed
// under the given company, so a cycle can check the company's aggregate
// capital deployment rather than just the one agent running it.
func (m *Manager) companyRoster(companyID string) []model.AgentConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roster := make([]model.AgentConfig, 0, len(m.loops))
	for _, l := range m.loops {
		l.mu.Lock()
		if l.company.ID == companyID {
			roster = append(roster, l.agent)
		}
		l.mu.Unlock()
	}
	return roster
}

func (m *Manager) get(agentID string) (*Loop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loops[agentID]
	if !ok {
		return nil, fmt.Errorf("loop %s: not found", agentID)
	}
	return l, nil
}

func (m *Manager) setGauge(agentID string, status model.LoopStatus) {
	if m.metrics == nil {
		return
	}
	var v float64
	switch status {
	case model.LoopStopped:
		v = 0
	case model.LoopRunning:
		v = 1
	case model.LoopPaused:
		v = 2
	case model.LoopError:
		v = 3
	}
	m.metrics.LoopStatus.WithLabelValues(agentID).Set(v)
}

func (m *Manager) setStatus(l *Loop, status model.LoopStatus) {
	l.mu.Lock()
	l.loopState.Status = status
	l.mu.Unlock()
	m.setGauge(l.agentID, status)
	m.publishHeartbeat(l.agentID, status)
}

// run drives one agent's loop: it wakes every pollInterval to check for
// a control signal, only actually running a cycle once a full interval
// has elapsed since the last one (or since start).
func (m *Manager) run(ctx context.Context, l *Loop) {
	defer close(l.done)

	paused := false
	var elapsed time.Duration
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.setStatus(l, model.LoopStopped)
			return
		case sig := <-l.control:
			switch sig {
			case signalPause:
				paused = true
				m.setStatus(l, model.LoopPaused)
			case signalResume:
				paused = false
				elapsed = 0
				m.setStatus(l, model.LoopRunning)
			case signalStop:
				m.setStatus(l, model.LoopStopped)
				return
			}
		case <-ticker.C:
			if paused {
				continue
			}
			elapsed += pollInterval
			if elapsed < l.interval {
				continue
			}
			elapsed = 0
			m.runCycle(ctx, l)
		}
	}
}

func (m *Manager) runCycle(ctx context.Context, l *Loop) {
	now := time.Now()

	l.mu.Lock()
	applyDailyReset(&l.state, now)
	agent, state, company, calendar := l.agent, l.state, l.company, l.calendar
	l.mu.Unlock()

	companyAgents := m.companyRoster(company.ID)
	cc, err := l.runner.Run(ctx, agent, state, company, companyAgents, now, calendar)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loopState.CyclesCompleted++
	l.loopState.LastCycleAt = &now

	if err != nil {
		l.loopState.Status = model.LoopError
		l.loopState.LastError = err.Error()
		l.log.Error().Err(err).Msg("cycle failed")
		m.setGauge(l.agentID, model.LoopError)
		m.publishHeartbeat(l.agentID, model.LoopError)
		return
	}

	l.loopState.LastError = ""
	if cc.SkippedReason == "" {
		applyOrderResult(&l.state, *cc, now)
	}
}

// applyOrderResult folds a completed cycle's decision and fill into the
// agent's running state: the executor and risk validator have already
// confirmed the trade happened, so this is pure bookkeeping.
func applyOrderResult(state *model.AgentState, cc cycle.CycleContext, now time.Time) {
	switch cc.Decision.Action {
	case model.ActionBuy:
		pos := model.Position{
			Quantity:   cc.Decision.Quantity,
			EntryPrice: cc.OrderResult.FillPrice,
			OpenedAt:   cc.OrderResult.FilledAt,
		}
		if cc.Decision.StopLoss != nil {
			pos.StopLoss = *cc.Decision.StopLoss
		}
		state.Positions = append(state.Positions, pos)
		state.TradesToday++
		state.LastTradeTime = &now
	case model.ActionSell:
		state.Positions = nil
		state.TradesToday++
		state.LastTradeTime = &now
	}
}

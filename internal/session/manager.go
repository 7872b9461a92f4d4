//go:build unix

package session

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/trybotster/synkd/internal/ptypool"
)

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CreateArgs is the input to CreateSession.
type CreateArgs struct {
	AgentType      AgentType
	ProjectPath    string
	WorkingDir     string
	Branch         string
	Model          string
	CodexProvider  ProviderChoice
	Env            map[string]string
	OpenAIAPIKey   string
	OpenRouterKey  string
	HomeDir        string
}

// Info is the response to create/restart/get/list.
type Info struct {
	SessionID  int
	PaneIndex  int
	AgentType  AgentType
	Warning    string
	WorkingDir string
	ProjectPath string
	Branch     string
}

// record is the Session Manager's bookkeeping entry for one live session.
type record struct {
	info   Info
	handle *ptypool.Handle
	pump   *pump
}

// Manager translates create/destroy/write/resize/restart requests into
// pool operations and shell bootstrapping.
type Manager struct {
	mu         sync.Mutex
	sessions   map[int]*record
	nextID     int
	pool       *ptypool.Pool
	registry   *AgentRegistry
	bus        *Bus
	defaultRows, defaultCols uint16
	log        zerolog.Logger
}

// New constructs a Session Manager over an already-warmed pool and a
// detected agent registry.
func New(pool *ptypool.Pool, registry *AgentRegistry, rows, cols uint16, log zerolog.Logger) *Manager {
	return &Manager{
		sessions:     make(map[int]*record),
		nextID:       1,
		pool:         pool,
		registry:     registry,
		bus:          NewBus(),
		defaultRows:  rows,
		defaultCols:  cols,
		log:          log.With().Str("component", "session_manager").Logger(),
	}
}

// Events returns the manager's shared event bus.
func (m *Manager) Events() *Bus { return m.bus }

func sessionKey(id int) string { return strconv.Itoa(id) }

// allocatePaneIndex returns the smallest non-negative integer not already
// used by a live session, bounded by maxActive. Caller must hold mu.
func (m *Manager) allocatePaneIndex(maxActive int) (int, error) {
	used := make(map[int]bool, len(m.sessions))
	for _, r := range m.sessions {
		used[r.info.PaneIndex] = true
	}
	for i := 0; i < maxActive; i++ {
		if !used[i] {
			return i, nil
		}
	}
	return 0, ptypool.ErrNoFreePane
}

// CreateSession implements the distilled spec's §4.4 create algorithm.
func (m *Manager) CreateSession(args CreateArgs) (Info, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.pool.MaxActive() {
		m.mu.Unlock()
		return Info{}, ptypool.ErrCapacity
	}
	sessionID := m.nextID
	m.nextID++
	paneIndex, err := m.allocatePaneIndex(m.pool.MaxActive())
	if err != nil {
		m.mu.Unlock()
		return Info{}, err
	}
	m.mu.Unlock()

	key := sessionKey(sessionID)
	handle, err := m.pool.Claim(key)
	if err != nil {
		return Info{}, err
	}

	info, pmp, cerr := m.bootstrapAndLaunch(sessionID, paneIndex, handle, args)
	if cerr != nil {
		m.pool.Release(key, handle)
		return Info{}, cerr
	}

	m.mu.Lock()
	m.sessions[sessionID] = &record{info: info, handle: handle, pump: pmp}
	m.mu.Unlock()

	return info, nil
}

// bootstrapAndLaunch resolves the agent, writes env exports and the
// bootstrap script, starts the output pump, and writes the launch line.
// The pump is started before the agent launch line so control queries
// during agent startup are answered.
func (m *Manager) bootstrapAndLaunch(sessionID, paneIndex int, handle *ptypool.Handle, args CreateArgs) (Info, *pump, error) {
	resolved, warning := m.registry.Resolve(args.AgentType)

	for name := range args.Env {
		if !envNamePattern.MatchString(name) {
			return Info{}, nil, &ptypool.Error{Kind: ptypool.KindInvalidEnv, Msg: name}
		}
	}

	workingDir := args.WorkingDir
	if workingDir == "" {
		workingDir = args.ProjectPath
	}

	var script strings.Builder
	for name, value := range args.Env {
		fmt.Fprintf(&script, "export %s=%s\n", name, shellSingleQuoteLocal(value))
	}
	fmt.Fprintf(&script, "export SYNK_SESSION_ID=%s\n", shellSingleQuoteLocal(strconv.Itoa(sessionID)))
	fmt.Fprintf(&script, "export SYNK_AGENT_TYPE=%s\n", shellSingleQuoteLocal(string(resolved)))
	fmt.Fprintf(&script, "export SYNK_PROJECT_PATH=%s\n", shellSingleQuoteLocal(args.ProjectPath))

	if resolved == AgentCodex || resolved == AgentOpenRouter {
		provider := resolveProvider(args.CodexProvider, "", args.Model)
		for name, value := range ProviderEnv(provider, args.OpenAIAPIKey, args.OpenRouterKey, args.HomeDir) {
			fmt.Fprintf(&script, "export %s=%s\n", name, shellSingleQuoteLocal(value))
		}
	}

	if workingDir != "" {
		fmt.Fprintf(&script, "cd %s\n", shellSingleQuoteLocal(workingDir))
	}
	if warning != "" {
		fmt.Fprintf(&script, "echo '[synk] %s'\n", strings.ReplaceAll(warning, "'", `'\''`))
	}

	if err := handle.WriteString(script.String()); err != nil {
		return Info{}, nil, err
	}

	sb := ptypool.NewScrollback()
	pmp := newPump(sessionID, handle, sb, m.bus, m.log)
	pmp.Start()

	if resolved != AgentTerminal {
		line := LaunchLine(resolved, resolved.CLICommand(), args.Model, resolved == AgentOpenRouter)
		if line != "" {
			if err := handle.WriteString(line + "\r\n"); err != nil {
				pmp.Stop()
				pmp.Join()
				return Info{}, nil, err
			}
		}
	}

	info := Info{
		SessionID:   sessionID,
		PaneIndex:   paneIndex,
		AgentType:   resolved,
		Warning:     warning,
		WorkingDir:  workingDir,
		ProjectPath: args.ProjectPath,
		Branch:      args.Branch,
	}
	return info, pmp, nil
}

func shellSingleQuoteLocal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Write forwards input bytes to a session's handle.
func (m *Manager) Write(sessionID int, data []byte) error {
	m.mu.Lock()
	r, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return ptypool.ErrUnknownSession
	}
	return r.handle.Write(data)
}

// Resize forwards a window-size change to a session's handle.
func (m *Manager) Resize(sessionID int, cols, rows uint16) error {
	m.mu.Lock()
	r, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return ptypool.ErrUnknownSession
	}
	return r.handle.Resize(cols, rows)
}

// DestroySession removes the record immediately, then on a worker thread
// stops and joins the pump, recycles-or-kills the handle, and emits an
// exit event — so the foreground caller never blocks on recycle.
func (m *Manager) DestroySession(sessionID int) error {
	m.mu.Lock()
	r, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return ptypool.ErrUnknownSession
	}

	key := sessionKey(sessionID)
	cfg := m.pool.DetachActive(key)

	go func() {
		r.pump.Stop()
		r.pump.Join()
		m.pool.ReleaseDetached(r.handle, cfg, false)
		m.bus.PublishExit(sessionID, 0)
	}()

	return nil
}

// RestartArgs is the input to RestartSession.
type RestartArgs struct {
	WorkingDir    string
	Branch        string
	Model         string
	CodexProvider ProviderChoice
}

// RestartSession changes working dir/branch/model/provider while keeping
// the same session_id and pane_index, per the distilled spec's §4.4
// restart algorithm.
func (m *Manager) RestartSession(sessionID int, args RestartArgs) (Info, error) {
	if args.WorkingDir == "" {
		return Info{}, ptypool.ErrEmptyDir
	}

	m.mu.Lock()
	r, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return Info{}, ptypool.ErrUnknownSession
	}

	oldHandle, oldPump := r.handle, r.pump
	oldPump.Stop()
	oldPump.Join()

	key := sessionKey(sessionID)
	cfg := m.pool.DetachActive(key)

	newHandle, err := m.pool.Claim(key)
	if err != nil {
		// Restore accounting with the old handle's pid, keep using it.
		m.pool.AttachActive(key, oldHandle.Pid())
		newPump := newPump(sessionID, oldHandle, ptypool.NewScrollback(), m.bus, m.log)
		newPump.Start()

		m.mu.Lock()
		m.sessions[sessionID] = &record{info: r.info, handle: oldHandle, pump: newPump}
		m.mu.Unlock()
		return Info{}, err
	}

	// Send the old handle's cleanup to a worker thread; it's off the hot path.
	go m.pool.ReleaseDetached(oldHandle, cfg, false)

	createArgs := CreateArgs{
		AgentType:     r.info.AgentType,
		ProjectPath:   r.info.ProjectPath,
		WorkingDir:    args.WorkingDir,
		Branch:        args.Branch,
		Model:         args.Model,
		CodexProvider: args.CodexProvider,
	}
	info, pmp, berr := m.bootstrapAndLaunch(sessionID, r.info.PaneIndex, newHandle, createArgs)
	if berr != nil {
		m.pool.Release(key, newHandle)
		return Info{}, berr
	}

	m.mu.Lock()
	m.sessions[sessionID] = &record{info: info, handle: newHandle, pump: pmp}
	m.mu.Unlock()

	return info, nil
}

// ListSessions returns all live sessions ordered by pane_index.
func (m *Manager) ListSessions() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.sessions))
	for _, r := range m.sessions {
		out = append(out, r.info)
	}
	for i := 0; i < len(out)-1; i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].PaneIndex < out[i].PaneIndex {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// GetInfo returns a single session's info.
func (m *Manager) GetInfo(sessionID int) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.sessions[sessionID]
	if !ok {
		return Info{}, ptypool.ErrUnknownSession
	}
	return r.info, nil
}

// Scrollback returns the raw bytes of a session's current ring contents.
func (m *Manager) Scrollback(sessionID int) ([]byte, error) {
	m.mu.Lock()
	r, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ptypool.ErrUnknownSession
	}
	return r.pump.scrollback.Snapshot(), nil
}

// Shutdown stops and joins every session's pump, detaches its accounting,
// and kills the handle without attempting recycle.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	records := make([]*record, 0, len(m.sessions))
	for id, r := range m.sessions {
		records = append(records, r)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range records {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.pump.Stop()
			r.pump.Join()
			m.pool.DetachActive(sessionKey(r.info.SessionID))
			r.handle.Kill(3 * time.Second)
		}()
	}
	wg.Wait()
}

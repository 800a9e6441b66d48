// Package spawner runs fleets of bot processes against a blackjack server.
package spawner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Environment handed to every bot process
const (
	EnvServer   = "BLACKJACK_SERVER"
	EnvUser     = "BLACKJACK_USER"
	EnvStrategy = "BLACKJACK_STRATEGY"
	EnvRounds   = "BLACKJACK_ROUNDS"
	EnvBet      = "BLACKJACK_BET"
	EnvSeed     = "BLACKJACK_SEED"
)

// BotSpawner manages the lifecycle of bot processes.
type BotSpawner struct {
	serverURL string
	processes map[string]*Process
	mu        sync.RWMutex
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	seed      int64
	botSeq    int
}

// BotSpec describes a group of identical bots
type BotSpec struct {
	Command  string            // Executable, normally the blackjack binary
	Args     []string          // Arguments, normally ["bot"]
	Count    int               // Number to spawn
	Strategy string            // Strategy name passed to each bot
	Rounds   int               // Rounds per bot, zero leaves the bot default
	Bet      int64             // Bet per round, zero leaves the bot default
	Env      map[string]string // Additional environment variables
}

// New creates a spawner for bots that connect to serverURL
func New(serverURL string, logger *log.Logger) *BotSpawner {
	ctx, cancel := context.WithCancel(context.Background())
	return &BotSpawner{
		serverURL: serverURL,
		processes: make(map[string]*Process),
		logger:    logger.WithPrefix("spawner"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// NewWithSeed creates a spawner whose bots get seeds derived from seed
func NewWithSeed(serverURL string, logger *log.Logger, seed int64) *BotSpawner {
	s := New(serverURL, logger)
	s.seed = seed
	return s
}

// SelfSpec returns a spec that runs this executable's bot command
func SelfSpec(strategy string, count int) (BotSpec, error) {
	exe, err := os.Executable()
	if err != nil {
		return BotSpec{}, fmt.Errorf("locating executable: %w", err)
	}
	return BotSpec{Command: exe, Args: []string{"bot"}, Count: count, Strategy: strategy}, nil
}

// ParseBotSpecs parses "basic:3,cautious:2" into strategy counts. A missing
// count means one bot.
func ParseBotSpecs(s string) (map[string]int, error) {
	counts := make(map[string]int)
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, rawCount, found := strings.Cut(part, ":")
		count := 1
		if found {
			n, err := strconv.Atoi(rawCount)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid bot count in %q", part)
			}
			count = n
		}
		counts[strings.ToLower(strings.TrimSpace(name))] += count
	}
	if len(counts) == 0 {
		return nil, errors.New("no bots specified")
	}
	return counts, nil
}

// Spawn starts spec.Count processes. If any fails to start, every bot
// started so far is stopped.
func (s *BotSpawner) Spawn(spec BotSpec) error {
	if spec.Count <= 0 {
		spec.Count = 1
	}

	s.logger.Info("Spawning bots", "command", spec.Command, "strategy", spec.Strategy, "count", spec.Count)

	for i := 0; i < spec.Count; i++ {
		proc := NewProcess(s.ctx, spec.Command, spec.Args, s.buildEnv(spec), s.logger)
		if err := proc.Start(); err != nil {
			s.logger.Error("Failed to spawn bot", "index", i, "error", err)
			_ = s.StopAll()
			return fmt.Errorf("failed to spawn bot %d: %w", i, err)
		}

		s.mu.Lock()
		s.processes[proc.ID] = proc
		s.mu.Unlock()
	}
	return nil
}

// SpawnMany spawns each spec in order
func (s *BotSpawner) SpawnMany(specs []BotSpec) error {
	for _, spec := range specs {
		if err := s.Spawn(spec); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every spawned bot
func (s *BotSpawner) StopAll() error {
	s.logger.Info("Stopping all bots")
	s.cancel()

	s.mu.Lock()
	procs := s.processes
	s.processes = make(map[string]*Process)
	s.mu.Unlock()

	for _, proc := range procs {
		_ = proc.Stop()
	}
	return nil
}

// Wait blocks until every bot has exited and returns the first failure
func (s *BotSpawner) Wait() error {
	var errs []error
	for _, proc := range s.snapshot() {
		if err := proc.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("bot %s: %w", proc.User, err))
		}
	}
	return errors.Join(errs...)
}

// ActiveCount returns the number of running bot processes
func (s *BotSpawner) ActiveCount() int {
	count := 0
	for _, proc := range s.snapshot() {
		if proc.IsAlive() {
			count++
		}
	}
	return count
}

// Users returns the user ids assigned to spawned bots, sorted
func (s *BotSpawner) Users() []string {
	procs := s.snapshot()
	users := make([]string, 0, len(procs))
	for _, proc := range procs {
		users = append(users, proc.User)
	}
	sort.Strings(users)
	return users
}

func (s *BotSpawner) snapshot() []*Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	procs := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		procs = append(procs, p)
	}
	return procs
}

func (s *BotSpawner) buildEnv(spec BotSpec) map[string]string {
	s.mu.Lock()
	s.botSeq++
	seq := s.botSeq
	s.mu.Unlock()

	prefix := spec.Strategy
	if prefix == "" {
		prefix = "bot"
	}

	env := map[string]string{
		EnvServer: s.serverURL,
		EnvUser:   fmt.Sprintf("%s-%d", prefix, seq),
	}
	if spec.Strategy != "" {
		env[EnvStrategy] = spec.Strategy
	}
	if spec.Rounds > 0 {
		env[EnvRounds] = strconv.Itoa(spec.Rounds)
	}
	if spec.Bet > 0 {
		env[EnvBet] = strconv.FormatInt(spec.Bet, 10)
	}
	if s.seed != 0 {
		env[EnvSeed] = strconv.FormatInt(s.seed+int64(seq), 10)
	}
	for k, v := range spec.Env {
		env[k] = v
	}
	return env
}

package agentproc

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Program is a resolved agent executable.
type Program struct {
	Name string
	Path string
	Args []string
	Env  map[string]string
}

// Spawner starts agent processes by program name. Children are started from their parent's
// program.
type Spawner struct {
	programs  map[string]Program
	memoryDir string
	logger    *log.Logger
}

func NewSpawner(programs []Program, memoryDir string, logger *log.Logger) *Spawner {
	m := make(map[string]Program, len(programs))
	for _, p := range programs {
		m[p.Name] = p
	}
	return &Spawner{programs: m, memoryDir: memoryDir, logger: logger}
}

// Spawn starts the process for agentID. The agent sees its id as AGENT_ID and, when a memory
// directory is configured, a private directory as AGENT_MEMORY_DIR.
func (s *Spawner) Spawn(agentID, program string) (*Handle, error) {
	p, ok := s.programs[program]
	if !ok {
		return nil, fmt.Errorf("unknown agent program %q", program)
	}
	env := []string{"AGENT_ID=" + agentID}
	if s.memoryDir != "" {
		dir := filepath.Join(s.memoryDir, agentID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("agent %s memory dir: %w", agentID, err)
		}
		env = append(env, "AGENT_MEMORY_DIR="+dir)
	}
	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, "AGENT_ID") || strings.EqualFold(k, "AGENT_MEMORY_DIR") {
			continue
		}
		env = append(env, k+"="+p.Env[k])
	}
	return Start(agentID, p.Path, p.Args, env, s.logger)
}

package exec

import "time"

// config separates global settings (fixed at New) from local settings that
// apply to a single Run.
type config struct {
	globalEnv        map[string]string
	globalDir        string
	globalInheritEnv bool
	globalTimeout    time.Duration

	localEnv        map[string]string
	localDir        string
	localInheritEnv *bool
	localTimeout    time.Duration
}

func newConfig() *config {
	return &config{
		globalEnv: make(map[string]string),
		localEnv:  make(map[string]string),
	}
}

// clone copies the global settings only.
func (c *config) clone() *config {
	out := newConfig()
	out.globalDir = c.globalDir
	out.globalInheritEnv = c.globalInheritEnv
	out.globalTimeout = c.globalTimeout
	for k, v := range c.globalEnv {
		out.globalEnv[k] = v
	}
	return out
}

func (c *config) effectiveEnv() map[string]string {
	env := make(map[string]string, len(c.globalEnv)+len(c.localEnv))
	for k, v := range c.globalEnv {
		env[k] = v
	}
	for k, v := range c.localEnv {
		env[k] = v
	}
	return env
}

func (c *config) effectiveDir() string {
	if c.localDir != "" {
		return c.localDir
	}
	return c.globalDir
}

func (c *config) effectiveInheritEnv() bool {
	if c.localInheritEnv != nil {
		return *c.localInheritEnv
	}
	return c.globalInheritEnv
}

func (c *config) effectiveTimeout() time.Duration {
	if c.localTimeout > 0 {
		return c.localTimeout
	}
	return c.globalTimeout
}

func (c *config) resetLocal() {
	c.localEnv = make(map[string]string)
	c.localDir = ""
	c.localInheritEnv = nil
	c.localTimeout = 0
}

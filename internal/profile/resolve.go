package profile

import "github.com/deltadent/ServicePro-sub000/internal/config"

// DefaultName is the profile used when neither the command line nor the
// config file names one.
const DefaultName = "main"

// Resolve picks the account profile a command acts on: flagName, then
// default_profile from cfg, then DefaultName. A nil cfg is read from
// ConfigPath. The chosen name is validated because it becomes a directory
// under BaseDir.
func Resolve(flagName string, cfg *config.Config) (string, error) {
	name := flagName
	if name == "" {
		if cfg == nil {
			if loaded, err := config.LoadOrDefault(ConfigPath()); err == nil {
				cfg = loaded
			}
		}
		if cfg != nil {
			name = cfg.DefaultProfile
		}
	}
	if name == "" {
		name = DefaultName
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

package model

import "strings"

// DefaultRemoteName is used when a remote is configured without a name
const DefaultRemoteName = "origin"

// RemoteConfig is a remote repository configured on a job's SCM.
// Field names are part of the persisted job configuration format.
type RemoteConfig struct {
	Name    string `json:"name,omitempty" toml:"name,omitempty" yaml:"name,omitempty"`
	URL     string `json:"url" toml:"url" yaml:"url"`
	Refspec string `json:"refspec,omitempty" toml:"refspec,omitempty" yaml:"refspec,omitempty"`
}

// NewRemoteConfig creates a RemoteConfig with surrounding whitespace trimmed from url
func NewRemoteConfig(url, name, refspec string) RemoteConfig {
	return RemoteConfig{
		Name:    name,
		URL:     strings.TrimSpace(url),
		Refspec: refspec,
	}
}

// EffectiveName returns the configured name, or "origin" when none is set
func (r RemoteConfig) EffectiveName() string {
	if r.Name == "" {
		return DefaultRemoteName
	}
	return r.Name
}

func (r RemoteConfig) String() string {
	return r.Refspec + " => " + r.URL + " (" + r.Name + ")"
}

// FindRemote returns the remote whose effective name equals name
func FindRemote(remotes []RemoteConfig, name string) (RemoteConfig, bool) {
	if name == "" {
		name = DefaultRemoteName
	}
	for _, r := range remotes {
		if r.EffectiveName() == name {
			return r, true
		}
	}
	return RemoteConfig{}, false
}

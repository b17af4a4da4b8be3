package mml

import (
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Profile describes how to reach and authenticate with a family of network elements.
//
//	host: 10.0.0.1
//	port: 6000
//	user: admin
//	pwd: secret
//	time_delta: 0.5
//	pre_cmd:
//	  - text: LGI:OP="{user}",PWD="{password}";
//	  - text: REG NE:NAME="{network_element}";
//	post_cmd:
//	  - text: UNREG NE:NAME="{network_element}";
//	  - text: LGO:OP="{user}";
type Profile struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Pwd  string `yaml:"pwd"`
	// TimeDelta is the inter-command delay, in seconds.
	TimeDelta float64         `yaml:"time_delta"`
	PreCmd    []ScriptEntry   `yaml:"pre_cmd"`
	PostCmd   []ScriptEntry   `yaml:"post_cmd"`
	Timeouts  ProfileTimeouts `yaml:"timeouts"`
}

// ScriptEntry is a single scripted command within a profile.
type ScriptEntry struct {
	Text string `yaml:"text"`
}

// ProfileTimeouts overrides the session timeouts, in seconds.
type ProfileTimeouts struct {
	Connect float64 `yaml:"connect"`
	Command float64 `yaml:"command"`
	Drain   float64 `yaml:"drain"`
}

// DefaultProfile defines the values applied to unspecified profile fields.
var DefaultProfile = Profile{
	Port: 6000,
	Timeouts: ProfileTimeouts{
		Connect: 10,
		Command: 12,
		Drain:   5,
	},
}

// LoadProfileFile reads a YAML profile from the named file.
func LoadProfileFile(path string) (*Profile, error) {
	f, err := os.Open(path) //nolint: gosec
	if err != nil {
		return nil, errors.Wrap(err, "open profile")
	}
	defer f.Close() //nolint: errcheck
	return LoadProfile(f)
}

// LoadProfile reads a YAML profile, applying defaults to any unspecified values.
func LoadProfile(r io.Reader) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, errors.Wrap(err, "decode profile")
	}
	if err := mergo.Merge(&p, DefaultProfile); err != nil {
		return nil, errors.Wrap(err, "apply profile defaults")
	}
	if p.Host == "" {
		return nil, errors.New("profile host must be defined")
	}
	if p.TimeDelta < 0 {
		return nil, errors.New("profile time_delta must not be negative")
	}
	return &p, nil
}

// Target returns the host:port address of the network element.
func (p *Profile) Target() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Options delivers the session options described by the profile.
func (p *Profile) Options() ([]SessionOption, error) {
	pre, err := scriptCommands(p.PreCmd)
	if err != nil {
		return nil, errors.Wrap(err, "pre_cmd")
	}
	post, err := scriptCommands(p.PostCmd)
	if err != nil {
		return nil, errors.Wrap(err, "post_cmd")
	}
	return []SessionOption{
		Credentials(p.User, p.Pwd),
		InterCommandDelay(seconds(p.TimeDelta)),
		PreLoginCommands(pre...),
		PostLoginCommands(post...),
		ConnectTimeout(seconds(p.Timeouts.Connect)),
		CommandTimeout(seconds(p.Timeouts.Command)),
		DrainTimeout(seconds(p.Timeouts.Drain)),
	}, nil
}

func scriptCommands(entries []ScriptEntry) ([]Command, error) {
	texts := make([]string, 0, len(entries))
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	return ParseCommands(texts...)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plugin

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = iota + 1
	PluginOptionTypeBool
	PluginOptionTypeInt
	PluginOptionTypeUint
)

// EnvVarPrefix is prepended to plugin option env vars, which take the form
// UPDRAFT_DATABASE_<TYPE>_<PLUGIN>_<OPTION>
const EnvVarPrefix = "UPDRAFT"

type PluginOption struct {
	DefaultValue any
	Dest         any
	Name         string
	Description  string
	// CustomEnvVar is an additional env var name checked before the
	// generated one, for well-known names such as DATABASE_URL
	CustomEnvVar string
	Type         PluginOptionType
}

// flagSet is the command line flag set the options were bound to. It's
// consulted so that explicitly passed flags win over config file and env
// values.
var flagSet *pflag.FlagSet

func (p *PluginOption) flagName(pluginType PluginType, pluginName string) string {
	return fmt.Sprintf(
		"%s-%s-%s",
		PluginTypeName(pluginType),
		pluginName,
		p.Name,
	)
}

func (p *PluginOption) envVarName(pluginType PluginType, pluginName string) string {
	ret := fmt.Sprintf(
		"%s_DATABASE_%s_%s_%s",
		EnvVarPrefix,
		PluginTypeName(pluginType),
		pluginName,
		p.Name,
	)
	ret = strings.ReplaceAll(ret, "-", "_")
	return strings.ToUpper(ret)
}

func (p *PluginOption) addToFlagSet(
	fs *pflag.FlagSet,
	pluginType PluginType,
	pluginName string,
) error {
	name := p.flagName(pluginType, pluginName)
	switch p.Type {
	case PluginOptionTypeString:
		dest, ok := p.Dest.(*string)
		if !ok || dest == nil {
			return fmt.Errorf("option %s: expected *string destination", name)
		}
		def, _ := p.DefaultValue.(string)
		fs.StringVar(dest, name, def, p.Description)
	case PluginOptionTypeBool:
		dest, ok := p.Dest.(*bool)
		if !ok || dest == nil {
			return fmt.Errorf("option %s: expected *bool destination", name)
		}
		def, _ := p.DefaultValue.(bool)
		fs.BoolVar(dest, name, def, p.Description)
	case PluginOptionTypeInt:
		dest, ok := p.Dest.(*int)
		if !ok || dest == nil {
			return fmt.Errorf("option %s: expected *int destination", name)
		}
		def, _ := p.DefaultValue.(int)
		fs.IntVar(dest, name, def, p.Description)
	case PluginOptionTypeUint:
		dest, ok := p.Dest.(*uint64)
		if !ok || dest == nil {
			return fmt.Errorf("option %s: expected *uint64 destination", name)
		}
		def, _ := p.DefaultValue.(uint64)
		fs.Uint64Var(dest, name, def, p.Description)
	default:
		return fmt.Errorf("unknown plugin option type %d for option %s", p.Type, name)
	}
	return nil
}

// assign writes value into the option destination. When lenient is set,
// values are coerced from the representations produced by YAML decoding and
// environment variables.
func (p *PluginOption) assign(value any, lenient bool) error {
	if p.Dest == nil {
		return fmt.Errorf("nil destination for option %s", p.Name)
	}
	switch p.Type {
	case PluginOptionTypeString:
		dest, ok := p.Dest.(*string)
		if !ok || dest == nil {
			return fmt.Errorf("invalid destination type for option %s: expected *string", p.Name)
		}
		switch v := value.(type) {
		case string:
			*dest = v
		default:
			if !lenient {
				return fmt.Errorf("invalid type for option %s: expected string", p.Name)
			}
			*dest = fmt.Sprint(v)
		}
	case PluginOptionTypeBool:
		dest, ok := p.Dest.(*bool)
		if !ok || dest == nil {
			return fmt.Errorf("invalid destination type for option %s: expected *bool", p.Name)
		}
		switch v := value.(type) {
		case bool:
			*dest = v
		case string:
			if !lenient {
				return fmt.Errorf("invalid type for option %s: expected bool", p.Name)
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for option %s: %w", p.Name, err)
			}
			*dest = b
		default:
			return fmt.Errorf("invalid type for option %s: expected bool", p.Name)
		}
	case PluginOptionTypeInt:
		dest, ok := p.Dest.(*int)
		if !ok || dest == nil {
			return fmt.Errorf("invalid destination type for option %s: expected *int", p.Name)
		}
		if v, ok := value.(int); ok {
			*dest = v
			return nil
		}
		if !lenient {
			return fmt.Errorf("invalid type for option %s: expected int", p.Name)
		}
		n, err := toInt64(value)
		if err != nil {
			return fmt.Errorf("invalid value for option %s: %w", p.Name, err)
		}
		*dest = int(n)
	case PluginOptionTypeUint:
		dest, ok := p.Dest.(*uint64)
		if !ok || dest == nil {
			return fmt.Errorf("invalid destination type for option %s: expected *uint64", p.Name)
		}
		switch v := value.(type) {
		case uint64:
			*dest = v
		case int:
			if v < 0 {
				return fmt.Errorf("invalid value for option %s: negative int", p.Name)
			}
			*dest = uint64(v)
		default:
			if !lenient {
				return fmt.Errorf("invalid type for option %s: expected uint64 or int", p.Name)
			}
			n, err := toInt64(value)
			if err != nil {
				return fmt.Errorf("invalid value for option %s: %w", p.Name, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for option %s: negative value", p.Name)
			}
			*dest = uint64(n)
		}
	default:
		return fmt.Errorf("unknown plugin option type %d for option %s", p.Type, p.Name)
	}
	return nil
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil //nolint:gosec
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported value type %T", value)
	}
}

// PopulateCmdlineOptions adds a flag for every option of every registered
// plugin to the provided flag set
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	for _, entry := range pluginEntries {
		for i := range entry.Options {
			if err := entry.Options[i].addToFlagSet(fs, entry.Type, entry.Name); err != nil {
				return err
			}
		}
	}
	flagSet = fs
	return nil
}

func flagChanged(name string) bool {
	if flagSet == nil {
		return false
	}
	f := flagSet.Lookup(name)
	return f != nil && f.Changed
}

// ProcessConfig applies plugin options from a config file. The map is keyed
// by plugin type name, then plugin name, then option name.
func ProcessConfig(pluginConfig map[string]map[string]map[string]any) error {
	var errs []error
	for _, entry := range pluginEntries {
		typeConfig, ok := pluginConfig[PluginTypeName(entry.Type)]
		if !ok {
			continue
		}
		optValues, ok := typeConfig[entry.Name]
		if !ok {
			continue
		}
		for i := range entry.Options {
			opt := &entry.Options[i]
			value, ok := optValues[opt.Name]
			if !ok {
				continue
			}
			if flagChanged(opt.flagName(entry.Type, entry.Name)) {
				continue
			}
			if err := opt.assign(value, true); err != nil {
				errs = append(
					errs,
					fmt.Errorf("%s plugin %s: %w", PluginTypeName(entry.Type), entry.Name, err),
				)
			}
		}
	}
	return errors.Join(errs...)
}

// ProcessEnvVars applies plugin options from environment variables
func ProcessEnvVars() error {
	var errs []error
	for _, entry := range pluginEntries {
		for i := range entry.Options {
			opt := &entry.Options[i]
			value, ok := os.LookupEnv(opt.envVarName(entry.Type, entry.Name))
			if !ok && opt.CustomEnvVar != "" {
				value, ok = os.LookupEnv(opt.CustomEnvVar)
			}
			if !ok {
				continue
			}
			if flagChanged(opt.flagName(entry.Type, entry.Name)) {
				continue
			}
			if err := opt.assign(value, true); err != nil {
				errs = append(
					errs,
					fmt.Errorf("%s plugin %s: %w", PluginTypeName(entry.Type), entry.Name, err),
				)
			}
		}
	}
	return errors.Join(errs...)
}

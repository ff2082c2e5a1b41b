package manifest

import (
	ierr "github.com/flexprice/stripesync/internal/errors"
	"github.com/spf13/viper"
)

// Manifest is the declarative stack descriptor this tool reconciles against
// the provider account(s). It carries the billing declarations plus the two
// deployment collaborators the reconcilers consume: the domain routing block
// and the function definitions with their HTTP triggers.
type Manifest struct {
	Service   string     `mapstructure:"service"`
	Stage     string     `mapstructure:"stage"`
	Region    string     `mapstructure:"region"`
	Domain    *Domain    `mapstructure:"domain"`
	Functions []Function `mapstructure:"functions"`
	Accounts  []Account  `mapstructure:"accounts"`
}

// Domain is the routing configuration webhook URLs are built from.
type Domain struct {
	DomainName string `mapstructure:"domainName"`
	BasePath   string `mapstructure:"basePath"`
}

// Function describes one deployed function and its triggers.
type Function struct {
	Name   string          `mapstructure:"name"`
	Events []FunctionEvent `mapstructure:"events"`
}

// FunctionEvent is one trigger of a function. Only HTTP triggers are
// meaningful to this tool.
type FunctionEvent struct {
	HTTPAPI *HTTPEvent `mapstructure:"httpApi"`
}

// HTTPEvent is an HTTP route trigger.
type HTTPEvent struct {
	Method string `mapstructure:"method"`
	Path   string `mapstructure:"path"`
}

// Account groups the declared billing entities of one provider account.
type Account struct {
	AccountID string    `mapstructure:"accountId"`
	APIKeyEnv string    `mapstructure:"apiKeyEnv"`
	Webhooks  []Webhook `mapstructure:"webhooks"`
	Products  []Product `mapstructure:"products"`
	Portals   []Portal  `mapstructure:"portals"`
}

// Load reads and decodes a stack manifest from path.
func Load(path string) (*Manifest, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Could not read stack manifest %s", path).
			Mark(ierr.ErrValidation)
	}

	var m Manifest
	if err := v.Unmarshal(&m); err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Stack manifest %s is not well formed", path).
			Mark(ierr.ErrValidation)
	}

	return &m, nil
}

// FindFunction returns the declared function with the given name.
func (m *Manifest) FindFunction(name string) (*Function, bool) {
	for i := range m.Functions {
		if m.Functions[i].Name == name {
			return &m.Functions[i], true
		}
	}
	return nil, false
}

// HTTPPostPath returns the path of the function's HTTP POST trigger.
func (f *Function) HTTPPostPath() (string, bool) {
	for _, ev := range f.Events {
		if ev.HTTPAPI != nil && isPost(ev.HTTPAPI.Method) && ev.HTTPAPI.Path != "" {
			return ev.HTTPAPI.Path, true
		}
	}
	return "", false
}

func isPost(method string) bool {
	return method == "POST" || method == "post" || method == "Post"
}

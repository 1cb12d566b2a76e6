package segmentation

import (
	"context"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"github.com/fcnseg/fcnseg/logging"
	"github.com/fcnseg/fcnseg/rimage"
)

// Backend runs a loaded segmentation model on a color image. Implementations are not required
// to be safe for concurrent use; Pipeline serializes calls.
type Backend interface {
	// Infer returns the raw labels and probabilities for a BGR image. Malformed input yields a
	// FrameSkippedError.
	Infer(ctx context.Context, img *rimage.PixelBuffer) (*RawSegmentation, error)
	// NumClasses is the number of classes the model scores.
	NumClasses() int
	Close(ctx context.Context) error
}

// BackendConfig is what a backend constructor receives.
type BackendConfig struct {
	// Name is the registered backend name, e.g. "onnx".
	Name string
	// Device is the accelerator index, or -1 for the host.
	Device      int
	TargetNames []string
	// Attributes are the backend specific settings, decoded with NativeAttributes.
	Attributes map[string]interface{}
}

// BackendConstructor builds a backend. It must fail with a ConfigurationError for bad settings
// and a RuntimeUnavailableError when the runtime cannot run here, so problems surface before the
// first frame.
type BackendConstructor func(ctx context.Context, conf BackendConfig, logger logging.Logger) (Backend, error)

// BackendRegistration describes a registered backend.
type BackendRegistration struct {
	Constructor BackendConstructor
	// Models lists the architecture names accepted in the model_name attribute.
	Models []string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]BackendRegistration{}
)

// RegisterBackend registers a backend under name. It panics on duplicates, so it should only be
// called from init functions.
func RegisterBackend(name string, reg BackendRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		panic(errors.Errorf("trying to register two backends with the same name %q", name))
	}
	if reg.Constructor == nil {
		panic(errors.Errorf("cannot register backend %q without a constructor", name))
	}
	registry[name] = reg
}

// DeregisterBackend removes a registration. Used by tests.
func DeregisterBackend(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}

// LookupBackend returns the registration for name.
func LookupBackend(name string) (BackendRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[name]
	return reg, ok
}

// RegisteredBackends returns the registered backend names, sorted.
func RegisteredBackends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBackend constructs the backend registered under conf.Name.
func NewBackend(ctx context.Context, conf BackendConfig, logger logging.Logger) (Backend, error) {
	reg, ok := LookupBackend(conf.Name)
	if !ok {
		return nil, NewConfigurationError("unsupported backend %q, expected one of %v", conf.Name, RegisteredBackends())
	}
	if len(conf.TargetNames) == 0 {
		return nil, NewConfigurationError("target_names must not be empty")
	}
	backend, err := reg.Constructor(ctx, conf, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create %s backend", conf.Name)
	}
	if backend.NumClasses() != len(conf.TargetNames) {
		err := NewConfigurationError("model scores %d classes but %d target_names are configured",
			backend.NumClasses(), len(conf.TargetNames))
		if closeErr := backend.Close(ctx); closeErr != nil {
			logger.Warnw("error closing backend", "error", closeErr)
		}
		return nil, err
	}
	return backend, nil
}

// NativeAttributes decodes a backend's attribute map into T, using the json tags of T. Unknown
// keys are a ConfigurationError.
func NativeAttributes[T any](attrs map[string]interface{}) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, errors.Wrap(err, "could not create attribute decoder")
	}
	if err := decoder.Decode(attrs); err != nil {
		return out, NewConfigurationError("bad attributes: %v", err)
	}
	return out, nil
}

// ValidateModelName checks name against the architectures a backend supports.
func ValidateModelName(backend, name string, models []string) error {
	for _, m := range models {
		if m == name {
			return nil
		}
	}
	return NewConfigurationError("unsupported model_name %q for backend %s, expected one of %v", name, backend, models)
}

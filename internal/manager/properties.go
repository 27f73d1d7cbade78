package manager

import (
	"context"
	"fmt"
)

// PropertyPrefix is prepended to every property name: whack.<domain>.
const PropertyPrefix = "whack."

func (m *Manager) propertyKey(name string) string {
	return PropertyPrefix + m.cfg.Domain + "." + name
}

// Property reads name from the preference store.
func (m *Manager) Property(ctx context.Context, name string) (string, bool, error) {
	value, ok, err := m.prefs.Get(ctx, m.propertyKey(name))
	if err != nil {
		return "", false, fmt.Errorf("get property %s: %w", name, err)
	}
	return value, ok, nil
}

// SetProperty writes name to the preference store.
func (m *Manager) SetProperty(ctx context.Context, name, value string) error {
	if err := m.prefs.Set(ctx, m.propertyKey(name), value); err != nil {
		return fmt.Errorf("set property %s: %w", name, err)
	}
	return nil
}

package persist

import (
	"maps"
	"slices"
	"strings"
)

// Store names involved in preference migrations.
const (
	PreferencesStore = "core/preferences"
	InterfaceStore   = "core/interface"
)

// MigrateFeaturePreferences moves the feature flags of a source store into
// the preferences store, scoped under the source store's name. Flags kept by
// the interface store for that scope take precedence over the source
// store's own. Nothing is migrated when the preferences store already holds
// the scope.
func MigrateFeaturePreferences(i *Interface, source string) error {
	if _, ok := i.GetPath(PreferencesStore, "preferences", source); ok {
		return nil
	}

	interfaceFeatures, fromInterface := nonNil(i.GetPath(InterfaceStore, "preferences", "features", source))
	sourceFeatures, fromSource := nonNil(i.GetPath(source, "preferences", "features"))

	features := sourceFeatures
	if fromInterface {
		features = interfaceFeatures
	}
	if features == nil {
		return nil
	}

	if err := i.SetPath([]string{PreferencesStore, "preferences", source}, features); err != nil {
		return err
	}
	if fromInterface {
		if err := i.DeletePath(InterfaceStore, "preferences", "features", source); err != nil {
			return err
		}
	}
	if fromSource {
		if err := i.DeletePath(source, "preferences", "features"); err != nil {
			return err
		}
	}
	return nil
}

// MigrateThirdPartyFeaturePreferences moves every non-core scope of the
// interface store's feature flags into the preferences store.
func MigrateThirdPartyFeaturePreferences(i *Interface) error {
	v, ok := i.GetPath(InterfaceStore, "preferences", "features")
	if !ok {
		return nil
	}
	scopes, _ := v.(map[string]any)

	for _, scope := range slices.Sorted(maps.Keys(scopes)) {
		if strings.HasPrefix(scope, "core/") || scopes[scope] == nil {
			continue
		}
		if _, exists := i.GetPath(PreferencesStore, "preferences", scope); !exists {
			if err := i.SetPath([]string{PreferencesStore, "preferences", scope}, scopes[scope]); err != nil {
				return err
			}
		}
		if err := i.DeletePath(InterfaceStore, "preferences", "features", scope); err != nil {
			return err
		}
	}
	return nil
}

// MigrateIndividualPreference moves one preference key of a source store
// into the preferences store. An existing value at the target wins and the
// source is left untouched.
func MigrateIndividualPreference(i *Interface, source, key string) error {
	value, ok := nonNil(i.GetPath(source, "preferences", key))
	if !ok {
		return nil
	}
	if _, exists := i.GetPath(PreferencesStore, "preferences", source, key); exists {
		return nil
	}

	if err := i.SetPath([]string{PreferencesStore, "preferences", source, key}, value); err != nil {
		return err
	}
	return i.DeletePath(source, "preferences", key)
}

func nonNil(v any, ok bool) (any, bool) {
	return v, ok && v != nil
}

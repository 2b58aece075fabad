package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAllowList_Validates(t *testing.T) {
	allow := DefaultAllowList()
	require.NoError(t, allow.Validate())
	for _, entityType := range EntityTypes {
		assert.True(t, allow.Known(entityType), entityType)
	}
}

func TestAllowList_Filter(t *testing.T) {
	allow := DefaultAllowList()

	t.Run("preserves request order", func(t *testing.T) {
		fields := allow.Filter(EntityContacts, []string{"phone", "name"})
		require.Len(t, fields, 2)
		assert.Equal(t, "phone", fields[0].Name)
		assert.Equal(t, "name", fields[1].Name)
	})

	t.Run("drops unknown fields", func(t *testing.T) {
		fields := allow.Filter(EntityContacts, []string{"name", "salary", "ssn"})
		require.Len(t, fields, 1)
		assert.Equal(t, "name", fields[0].Name)
	})

	t.Run("deduplicates", func(t *testing.T) {
		fields := allow.Filter(EntityLeads, []string{"stage", "stage", "source"})
		require.Len(t, fields, 2)
		assert.Equal(t, "stage", fields[0].Name)
		assert.Equal(t, "source", fields[1].Name)
	})

	t.Run("empty intersection", func(t *testing.T) {
		assert.Empty(t, allow.Filter(EntityCompanies, []string{"dueDate", "priority"}))
	})

	t.Run("unknown entity type", func(t *testing.T) {
		assert.Empty(t, allow.Filter("widgets", []string{"name"}))
	})

	t.Run("camel case maps to snake column", func(t *testing.T) {
		fields := allow.Filter(EntityTasks, []string{"dueDate"})
		require.Len(t, fields, 1)
		assert.Equal(t, "due_date", fields[0].Column)
	})
}

func TestNewAllowList(t *testing.T) {
	t.Run("overrides one entity and keeps defaults", func(t *testing.T) {
		allow, err := NewAllowList(map[string][]string{
			EntityContacts: {"name", "birthDate"},
		})
		require.NoError(t, err)

		fields := allow[EntityContacts]
		require.Len(t, fields, 2)
		assert.Equal(t, EntityField{Name: "birthDate", Column: "birth_date"}, fields[1])

		assert.Len(t, allow[EntityTasks], 4)
	})

	t.Run("empty override falls back to defaults", func(t *testing.T) {
		allow, err := NewAllowList(map[string][]string{EntityLeads: {}})
		require.NoError(t, err)
		assert.Len(t, allow[EntityLeads], 4)
	})

	t.Run("rejects unknown entity type", func(t *testing.T) {
		_, err := NewAllowList(map[string][]string{"widgets": {"name"}})
		assert.ErrorIs(t, err, ErrUnknownEntityType)
	})

	t.Run("rejects unsafe column", func(t *testing.T) {
		_, err := NewAllowList(map[string][]string{
			EntityContacts: {"name; DROP TABLE contacts"},
		})
		assert.Error(t, err)
	})
}

func TestErrorWrappers(t *testing.T) {
	base := ErrMissingEmail

	perm := Permanent(base)
	assert.True(t, IsPermanent(perm))
	assert.ErrorIs(t, perm, ErrMissingEmail)
	assert.False(t, IsCritical(perm))
	assert.Nil(t, Permanent(nil))

	crit := Critical(base)
	assert.True(t, IsCritical(crit))
	assert.ErrorIs(t, crit, ErrMissingEmail)
	assert.False(t, IsPermanent(crit))
	assert.Nil(t, Critical(nil))
}

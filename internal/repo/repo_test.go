package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/teleconsult/internal/model"
	"github.com/Alijeyrad/teleconsult/pkg/idgen"
)

func TestConsultationColumnsAligned(t *testing.T) {
	c := &model.Consultation{}

	assert.Len(t, consultationFields(c), len(consultationColumns))
	assert.Len(t, consultationValues(c), len(consultationColumns))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$1, $2, $3", placeholders(1, 3))
	assert.Equal(t, "$4", placeholders(4, 1))
}

func TestSequenceSourcesCoverEveryFamily(t *testing.T) {
	for _, seq := range []idgen.Sequence{idgen.Consultation, idgen.Receipt, idgen.Payment} {
		_, ok := sequenceSources[seq.Prefix]
		assert.True(t, ok, seq.Prefix)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := Migrations().FindMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	assert.Equal(t, "0001_init.sql", migrations[0].Id)
	assert.NotEmpty(t, migrations[0].Up)
	assert.NotEmpty(t, migrations[0].Down)
}

package source

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuoteIdent(t *testing.T) {
	ident, err := quoteIdent("elab_ariel_power")
	require.NoError(t, err)
	require.Equal(t, "`elab_ariel_power`", ident)

	ident, err = quoteIdent("T$account_2015")
	require.NoError(t, err)
	require.Equal(t, "`T$account_2015`", ident)
}

func TestQuoteIdentRejectsUnsafeNames(t *testing.T) {
	for _, name := range []string{
		"",
		"points; DROP TABLE points",
		"elab.ariel.power",
		"na`me",
		"with space",
	} {
		_, err := quoteIdent(name)
		require.ErrorIs(t, err, ErrInvalidTable, "name %q", name)
	}
}

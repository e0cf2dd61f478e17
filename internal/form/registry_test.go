package form

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	assert.Equal(t, "patchInvoice", Name(http.MethodPatch, "Invoice"))
	assert.Equal(t, "postOrder", Name(http.MethodPost, "Order"))
	assert.Equal(t, Name("PUT", "Widget"), Name("PUT", "Widget"))
}

func TestRegistryLoadDir(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.LoadDir("testdata/forms"))
	assert.Equal(t, []string{"patchWidget", "postWidget"}, reg.Names())

	def, ok := reg.Lookup("postWidget")
	require.True(t, ok)
	require.Len(t, def.Fields, 5)
	assert.True(t, def.Fields[3].Compound())
	assert.False(t, def.AllowExtraFields)
}

func TestRegistryLoadDirMissingIsNotAnError(t *testing.T) {
	reg := NewRegistry()
	assert.NoError(t, reg.LoadDir("testdata/does-not-exist"))
	assert.Empty(t, reg.Names())
}

func TestRegistryLoadDirRejectsBrokenDefinition(t *testing.T) {
	reg := NewRegistry()
	err := reg.LoadDir("testdata/broken")
	require.ErrorIs(t, err, ErrInvalidDefinition)
	assert.Contains(t, err.Error(), `duplicate field "name"`)
}

func TestRegistryRegisterUsesFormName(t *testing.T) {
	reg := NewRegistry()
	def := &Definition{ID: "ignored", Fields: []FieldDef{{Name: "amount"}}}
	require.NoError(t, reg.Register(http.MethodPatch, "Invoice", def))

	got, ok := reg.Lookup("patchInvoice")
	require.True(t, ok)
	assert.Equal(t, "patchInvoice", got.ID)
	assert.Equal(t, "ignored", def.ID, "caller's definition is not modified")
}

func TestRegistryAddValidates(t *testing.T) {
	reg := NewRegistry()
	assert.ErrorIs(t, reg.Add(nil), ErrInvalidDefinition)
	assert.ErrorIs(t, reg.Add(&Definition{ID: "postX"}), ErrInvalidDefinition)
	assert.ErrorIs(t, reg.Add(&Definition{Fields: []FieldDef{{Name: "a"}}}), ErrInvalidDefinition)
	assert.ErrorIs(t, reg.Add(&Definition{
		ID:     "postX",
		Fields: []FieldDef{{Name: "a", Fields: []FieldDef{{Name: ""}}}},
	}), ErrInvalidDefinition)
}

func TestRegistryRequire(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.Require(
		Pair{Verb: http.MethodPost, Entity: "Widget"},
		Pair{Verb: http.MethodPatch, Entity: "Widget"},
	))

	err := reg.Require(
		Pair{Verb: http.MethodPost, Entity: "Widget"},
		Pair{Verb: http.MethodDelete, Entity: "Widget"},
		Pair{Verb: http.MethodPut, Entity: "Gadget"},
	)
	require.ErrorIs(t, err, ErrUnknownForm)
	assert.Contains(t, err.Error(), "deleteWidget, putGadget")
}

func TestRegistryCreate(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Create("postGadget", http.MethodPost, &testWidget{})
	require.ErrorIs(t, err, ErrUnknownForm)
	assert.Contains(t, err.Error(), "postGadget")

	_, err = reg.Create("postWidget", http.MethodPost, testWidget{})
	assert.ErrorIs(t, err, ErrInvalidEntity)

	var nilWidget *testWidget
	_, err = reg.Create("postWidget", http.MethodPost, nilWidget)
	assert.ErrorIs(t, err, ErrInvalidEntity)

	f, err := reg.Create("postWidget", http.MethodPost, &testWidget{})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, f.Method())
	assert.Len(t, f.Children(), 5)
	assert.Equal(t, "address.city", f.Child("address").Child("city").Path())
	assert.Nil(t, f.Child("nope"))
}

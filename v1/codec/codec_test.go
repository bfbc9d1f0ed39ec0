package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	ID  int    `json:"id"`
	Qty int    `json:"qty"`
	SKU string `json:"sku,omitempty"`
}

func (o order) Validate() error {
	if o.ID <= 0 {
		return errors.New("id must be positive")
	}
	return nil
}

type shipment struct {
	ID      int    `json:"id" validate:"required"`
	Carrier string `json:"carrier,omitempty"`
	Qty     int    `json:"qty"`
}

type audited struct {
	Actor string `json:"actor"`
}

type auditedOrder struct {
	order
	audited
	internal string
	Ignored  string `json:"-"`
}

func TestJSONDecode(t *testing.T) {
	c := NewJSON[order]()

	tests := []struct {
		name    string
		body    string
		want    order
		wantErr bool
	}{
		{name: "valid", body: `{"id":1,"qty":2}`, want: order{ID: 1, Qty: 2}},
		{name: "unknown fields are ignored", body: `{"id":1,"qty":2,"note":"x"}`, want: order{ID: 1, Qty: 2}},
		{name: "not json", body: `not json at all`, wantErr: true},
		{name: "wrong type", body: `{"id":"one","qty":2}`, wantErr: true},
		{name: "validation failure", body: `{"qty":2}`, wantErr: true},
		{name: "null", body: `null`, wantErr: true},
		{name: "empty", body: `   `, wantErr: true},
		{name: "trailing garbage", body: `{"id":1}{"id":2}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Decode([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeEnforcesValidateTags(t *testing.T) {
	c := NewJSON[shipment]()

	for _, body := range []string{`{}`, `{"foo":"bar"}`, `{"qty":2}`, `{"id":0,"qty":2}`} {
		t.Run(body, func(t *testing.T) {
			_, err := c.Decode([]byte(body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedMessage)
			assert.Contains(t, err.Error(), "id")
		})
	}

	got, err := c.Decode([]byte(`{"id":7,"qty":2}`))
	require.NoError(t, err)
	assert.Equal(t, shipment{ID: 7, Qty: 2}, got)
}

func TestDecodeValidatesPointerAndPositionalMessages(t *testing.T) {
	_, err := NewJSON[*shipment]().Decode([]byte(`{"qty":2}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	got, err := NewJSON[*shipment]().Decode([]byte(`{"id":3}`))
	require.NoError(t, err)
	assert.Equal(t, &shipment{ID: 3}, got)

	positional, err := NewPositional[shipment]()
	require.NoError(t, err)
	_, err = positional.Decode([]byte(`[[], {"qty": 2}, {}]`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDecodeSkipsTagValidationForNonStructs(t *testing.T) {
	got, err := NewJSON[map[string]int]().Decode([]byte(`{"qty":2}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"qty": 2}, got)

	n, err := NewJSON[int]().Decode([]byte(`5`))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestDecodeRejectsInvalidUTF8(t *testing.T) {
	_, err := NewJSON[order]().Decode([]byte{'{', 0xff, '}'})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestPositionalDecode(t *testing.T) {
	c, err := NewPositional[order]()
	require.NoError(t, err)

	tests := []struct {
		name    string
		body    string
		want    order
		wantErr string
	}{
		{name: "args only", body: `[[1, 2, "A-1"], {}, {}]`, want: order{ID: 1, Qty: 2, SKU: "A-1"}},
		{name: "args and kwargs", body: `[[1], {"qty": 3}, {}]`, want: order{ID: 1, Qty: 3}},
		{name: "kwargs only", body: `[[], {"id": 4, "qty": 1}, {"ignored": true}]`, want: order{ID: 4, Qty: 1}},
		{name: "too many args", body: `[[1, 2, "A", 4], {}, {}]`, wantErr: "positional arguments"},
		{name: "duplicate argument", body: `[[1], {"id": 2}, {}]`, wantErr: "multiple values"},
		{name: "unknown keyword", body: `[[1], {"colour": "red"}, {}]`, wantErr: "unknown field"},
		{name: "wrong arity", body: `[[1], {}]`, wantErr: "expected 3"},
		{name: "object instead of envelope", body: `{"id": 1}`, wantErr: "not a JSON array"},
		{name: "args not array", body: `[{"id": 1}, {}, {}]`, wantErr: "not an array"},
		{name: "kwargs null", body: `[[1], null, {}]`, wantErr: "not an object"},
		{name: "fails validation", body: `[[0, 1], {}, {}]`, wantErr: "id must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Decode([]byte(tt.body))
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrMalformedMessage)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPositionalEncodeIsReadableByDecode(t *testing.T) {
	c, err := NewPositional[order]()
	require.NoError(t, err)

	body, err := c.Encode(order{ID: 7, Qty: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `[[], {"id": 7, "qty": 1}, {}]`, string(body))

	got, err := c.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, order{ID: 7, Qty: 1}, got)
}

func TestJSONEncode(t *testing.T) {
	body, err := NewJSON[order]().Encode(order{ID: 1, Qty: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"qty":2}`, string(body))
}

func TestPositionalFieldOrderFollowsEmbedding(t *testing.T) {
	assert.Equal(t, []string{"id", "qty", "sku", "actor"}, jsonFieldNames(reflectType[auditedOrder]()))

	c, err := NewPositional[auditedOrder]()
	require.NoError(t, err)
	got, err := c.Decode([]byte(`[[1, 2, "S", "ops"], {}, {}]`))
	require.NoError(t, err)
	assert.Equal(t, "ops", got.Actor)
	assert.Equal(t, 2, got.Qty)
}

func TestPositionalRequiresStruct(t *testing.T) {
	_, err := NewPositional[map[string]int]()
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

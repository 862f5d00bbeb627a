package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ticketInput struct {
	ClientName string           `json:"client_name" validate:"required,max=10"`
	Email      string           `json:"email" validate:"email"`
	Color      string           `json:"color" validate:"hexcolor"`
	Type       string           `json:"type" validate:"oneof=info warning"`
	Cost       *decimal.Decimal `json:"estimated_cost" validate:"gte=0"`
	Days       int              `json:"days" validate:"gte=1"`
	Password   string           `json:"password" validate:"min=6"`
}

func valid() ticketInput {
	return ticketInput{ClientName: "Ion", Days: 1, Password: "secret1"}
}

func TestValidatorAccepts(t *testing.T) {
	in := valid()
	cost := decimal.NewFromInt(0)
	in.Cost = &cost
	in.Email = "ion@example.com"
	in.Color = "#abc"
	in.Type = "warning"
	assert.NoError(t, NewValidator().Validate(&in))
}

func TestValidatorRejects(t *testing.T) {
	negative := decimal.NewFromInt(-1)
	tests := []struct {
		name   string
		mutate func(*ticketInput)
		field  string
		rule   string
	}{
		{"blank", func(in *ticketInput) { in.ClientName = "   " }, "client_name", "required"},
		{"too long", func(in *ticketInput) { in.ClientName = "Ionel Popescu" }, "client_name", "max"},
		{"email", func(in *ticketInput) { in.Email = "not-an-email" }, "email", "email"},
		{"color", func(in *ticketInput) { in.Color = "blue" }, "color", "hexcolor"},
		{"oneof", func(in *ticketInput) { in.Type = "danger" }, "type", "oneof"},
		{"negative cost", func(in *ticketInput) { in.Cost = &negative }, "estimated_cost", "gte"},
		{"days", func(in *ticketInput) { in.Days = 0 }, "days", "gte"},
		{"short password", func(in *ticketInput) { in.Password = "abc" }, "password", "min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			err := NewValidator().Validate(in)
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
			assert.Equal(t, tt.rule, fe.Rule)
			assert.Contains(t, fe.Error(), tt.field)
		})
	}
}

func TestValidatorRequiredPointer(t *testing.T) {
	type in struct {
		Name *string `json:"name" validate:"required"`
	}
	err := NewValidator().Validate(in{})
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "required", fe.Rule)
}

func TestValidatorNonStruct(t *testing.T) {
	assert.Error(t, NewValidator().Validate(42))
}

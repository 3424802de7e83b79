package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/estatehub/internal/model"
)

type sampleRequest struct {
	Username string `json:"username" validate:"required,min=8,max=150"`
	Email    string `json:"email" validate:"required,email"`
	Discount int    `form:"discount" validate:"min=0,max=100"`
	Purpose  string `json:"purpose" validate:"required,oneof='For Sale' 'For Rent'"`
	Password string `json:"password" validate:"required,maxbytes=72"`
}

func validSample() sampleRequest {
	return sampleRequest{
		Username: "alice_01",
		Email:    "a@x.com",
		Discount: 10,
		Purpose:  "For Rent",
		Password: strings.Repeat("a", 72),
	}
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(validSample()))
}

func TestStruct_Violations(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*sampleRequest)
		message string
	}{
		{"必須", func(r *sampleRequest) { r.Email = "" }, "email is required"},
		{"メール形式", func(r *sampleRequest) { r.Email = "nope" }, "email must be a valid email address"},
		{"文字数不足", func(r *sampleRequest) { r.Username = "bob" }, "username must be at least 8 characters long"},
		{"数値上限", func(r *sampleRequest) { r.Discount = 101 }, "discount must be at most 100"},
		{"マルチバイトのバイト数上限", func(r *sampleRequest) { r.Password = strings.Repeat("é", 40) }, "password must be at most 72 bytes long"},
		{"列挙値", func(r *sampleRequest) { r.Purpose = "Lease" }, "purpose must be one of ['For Sale' 'For Rent']"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSample()
			tt.mutate(&req)

			err := Struct(req)
			require.Error(t, err)
			assert.Equal(t, model.KindBadRequest, model.KindOf(err))

			var apiErr *model.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

package issuance

import (
	"strings"

	"github.com/go-playground/validator/v10"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// IssueRequest is the fixed, validated issuance input. Every field is
// required and checked before any side effect; a malformed request is
// rejected with ValidationError and commits nothing.
type IssueRequest struct {
	Student     string `validate:"required"`
	Institution string `validate:"required"`
	DegreeLabel string `validate:"required,notblank,max=200"`
	Document    []byte `validate:"required,min=1"`
}

// ParsedIssueRequest carries the request after identity grammar checks.
type ParsedIssueRequest struct {
	Student     id.Identity
	Institution id.Identity
	DegreeLabel string
	Document    []byte
}

// Parse validates the request shape and the identity-address grammar.
func (r IssueRequest) Parse() (ParsedIssueRequest, error) {
	if err := validate.Struct(r); err != nil {
		return ParsedIssueRequest{}, dErrors.New(dErrors.CodeValidation, validationMessage(err))
	}

	// New, not Wrap: ParseIdentity fails with invalid_input and Wrap keeps
	// an inner domain code. A malformed issue request is a validation failure.
	student, err := id.ParseIdentity(r.Student)
	if err != nil {
		return ParsedIssueRequest{}, dErrors.New(dErrors.CodeValidation, "invalid student identity")
	}
	institution, err := id.ParseIdentity(r.Institution)
	if err != nil {
		return ParsedIssueRequest{}, dErrors.New(dErrors.CodeValidation, "invalid institution identity")
	}
	if student == institution {
		return ParsedIssueRequest{}, dErrors.New(dErrors.CodeValidation, "student and institution must differ")
	}

	return ParsedIssueRequest{
		Student:     student,
		Institution: institution,
		DegreeLabel: strings.TrimSpace(r.DegreeLabel),
		Document:    r.Document,
	}, nil
}

// validationMessage converts a validator error into a stable human-readable message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	ok := false
	if e, isVErrs := err.(validator.ValidationErrors); isVErrs {
		verrs, ok = e, len(e) > 0
	}
	if !ok {
		return "invalid issue request"
	}

	fe := verrs[0]
	switch fe.ActualTag() {
	case "required", "min":
		return strings.ToLower(fe.Field()) + " is required"
	case "notblank":
		return strings.ToLower(fe.Field()) + " cannot be blank"
	case "max":
		return strings.ToLower(fe.Field()) + " is too long"
	default:
		return "invalid issue request"
	}
}

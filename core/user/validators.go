package user

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/academia-dev/academia/core"
	appfs "github.com/academia-dev/academia/fs"
)

var (
	anyRoleTag  = "anyrole"
	anyRoleText = "invalid role"

	signupRoleTag  = "signuprole"
	signupRoleText = "role must be one of PENDING or TRANSFEREE"

	accountStatusTag  = "accountstatus"
	accountStatusText = "invalid account status"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"
	commonPasswords map[string]struct{}

	numericRegex = regexp.MustCompile(`^\d+$`)
)

// InitValidators registers the user package's custom validators and translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(anyRoleTag, anyRoleValidation)
	core.RegisterCustomTranslation(validate, translator, anyRoleTag, anyRoleText)

	_ = validate.RegisterValidation(signupRoleTag, signupRoleValidation)
	core.RegisterCustomTranslation(validate, translator, signupRoleTag, signupRoleText)

	_ = validate.RegisterValidation(accountStatusTag, accountStatusValidation)
	core.RegisterCustomTranslation(validate, translator, accountStatusTag, accountStatusText)

	validate.RegisterStructValidation(newUserStructValidation, NewUser{})
	validate.RegisterStructValidation(updateUserStructValidation, UpdateUser{})
	validate.RegisterStructValidation(resetPasswordStructValidation, ResetUserPassword{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)
}

// LoadCommonPasswords loads the embedded common-password denylist.
// Call once at app start-up.
func LoadCommonPasswords(logger core.Logger) {
	commonPasswords = make(map[string]struct{})

	data, err := appfs.FS.ReadFile("assets/common-passwords.txt")
	if err != nil {
		logger.Error("loading common passwords", err)
		return
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			commonPasswords[pwd] = struct{}{}
		}
	}
}

func anyRoleValidation(fl validator.FieldLevel) bool {
	return RolePriority(fl.Field().String()) > 0
}

func signupRoleValidation(fl validator.FieldLevel) bool {
	role := fl.Field().String()
	for _, r := range SignupRoles {
		if role == r {
			return true
		}
	}
	return false
}

func accountStatusValidation(fl validator.FieldLevel) bool {
	status := fl.Field().String()
	for _, s := range AllStatuses {
		if status == s {
			return true
		}
	}
	return false
}

func newUserStructValidation(sl validator.StructLevel) {
	nu := sl.Current().Interface().(NewUser)
	validatePassword(sl, nu.Password, "Password", "password", nu.Name, nu.Email)
}

func updateUserStructValidation(sl validator.StructLevel) {
	uu := sl.Current().Interface().(UpdateUser)
	if uu.Password != "" {
		validatePassword(sl, uu.Password, "Password", "password", uu.Name, uu.Email)
	}
}

func resetPasswordStructValidation(sl validator.StructLevel) {
	rp := sl.Current().Interface().(ResetUserPassword)
	validatePassword(sl, rp.Password, "Password", "password", "")
}

// validatePassword applies the password policy against the given user attributes.
func validatePassword(sl validator.StructLevel, pwd, fieldName, tagName string, attrs ...string) {
	if pwd == "" {
		return
	}
	if len(pwd) < pwdMinLen {
		sl.ReportError(pwd, fieldName, tagName, pwdMinLenTag, "")
	}
	for _, r := range pwd {
		if unicode.IsSpace(r) {
			sl.ReportError(pwd, fieldName, tagName, pwdNoSpaceTag, "")
			break
		}
	}
	if numericRegex.MatchString(pwd) {
		sl.ReportError(pwd, fieldName, tagName, pwdNotAllNumTag, "")
	}
	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		if similarity(strings.ToLower(pwd), strings.ToLower(attr)) > pwdMaxSim {
			sl.ReportError(pwd, fieldName, tagName, pwdAttrSimTag, "")
			break
		}
	}
	if _, found := commonPasswords[strings.ToLower(pwd)]; found {
		sl.ReportError(pwd, fieldName, tagName, pwdNoCommonTag, "")
	}
}

// similarity returns a [0, 1] ratio of how alike two strings are.
func similarity(a, b string) float64 {
	return difflib.NewMatcher(splitChars(a), splitChars(b)).Ratio()
}

func splitChars(s string) []string {
	chars := make([]string, 0, len(s))
	for _, r := range s {
		chars = append(chars, string(r))
	}
	return chars
}

package handlers

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"sepolia-wallet.backend/pkg/ethunit"
)

var (
	registerOnce   sync.Once
	registerErr    error
	privateKeyExpr = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
)

const fieldErrFormat = "'%s': value '%v' does not meet the requirements for the '%s' validation"

// RegisterValidators adds the wallet specific binding rules to gin's
// validator: ethamount (non-negative decimal ether string) and
// eth_privkey (0x-prefixed 32 byte hex key). Safe to call more than once.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("unexpected binding engine")
			return
		}
		if err := v.RegisterValidation("ethamount", func(fl validator.FieldLevel) bool {
			return ethunit.IsAmount(fl.Field().String())
		}); err != nil {
			registerErr = err
			return
		}
		registerErr = v.RegisterValidation("eth_privkey", func(fl validator.FieldLevel) bool {
			return privateKeyExpr.MatchString(fl.Field().String())
		})
	})
	return registerErr
}

// bindingMessage flattens validator errors into one readable line
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		value := fe.Value()
		// never echo key material back
		if fe.Tag() == "eth_privkey" {
			value = "***"
		}
		msgs = append(msgs, fmt.Sprintf(fieldErrFormat, fe.Field(), value, fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

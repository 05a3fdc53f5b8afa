package pkg

import (
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ParseAndValidate binds the JSON body of c into dto and runs its validate
// tags.
func ParseAndValidate(c *gin.Context, dto any) error {
	if err := c.ShouldBindJSON(dto); err != nil {
		return err
	}
	return validate.Struct(dto)
}

// Validate runs the validate tags of a value decoded outside of gin, such as
// websocket payloads.
func Validate(dto any) error {
	return validate.Struct(dto)
}

package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/example/storefront/pkg/models"
	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

type lineItemRequest struct {
	ProductID int64  `json:"productId" validate:"required,gt=0"`
	Name      string `json:"name" validate:"required"`
	Price     int64  `json:"price" validate:"gte=0"`
	ImageURL  string `json:"imageUrl,omitempty" validate:"omitempty,url"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// createOrderRequest is the checkout payload. Total is optional; when given
// it must equal the sum of price * quantity. ID fits the widest mirror key
// column (36, a UUID).
type createOrderRequest struct {
	ID    string            `json:"id,omitempty" validate:"omitempty,max=36"`
	Items []lineItemRequest `json:"items" validate:"required,min=1,dive"`
	Total *int64            `json:"total,omitempty" validate:"omitempty,gte=0"`
}

func (r createOrderRequest) lines() []models.LineItem {
	lines := make([]models.LineItem, len(r.Items))
	for i, it := range r.Items {
		lines[i] = models.LineItem{
			Product: models.ProductSnapshot{
				ID:       it.ProductID,
				Name:     it.Name,
				Price:    it.Price,
				ImageURL: it.ImageURL,
			},
			Quantity: it.Quantity,
		}
	}
	return lines
}

func newValidator() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterStructValidation(createOrderStructValidation, createOrderRequest{})
	return v
}

func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(createOrderRequest)
	if req.Total == nil {
		return
	}

	var sum int64
	for _, it := range req.Items {
		sum += it.Price * int64(it.Quantity)
	}
	if sum != *req.Total {
		sl.ReportError(*req.Total, "total", "Total", "total_match_items", fmt.Sprintf("%d", sum))
	}
}

// bindAndValidate writes a 400 response and returns an error when the body
// cannot be decoded or fails validation.
func bindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_request_body",
			"msg":   err.Error(),
		})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": validationErrorsToMap(err),
		})
		return err
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Namespace()] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}

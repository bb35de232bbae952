package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/pipnation/internal/middleware"
	"github.com/hitoshi/pipnation/internal/model"
)

// maxRequestBodyBytes はリクエストボディの上限サイズ。
const maxRequestBodyBytes = 64 << 10

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換して書き込み、
// 書き込んだステータスコードを返す。
func handleServiceError(w http.ResponseWriter, err error) int {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return statusCode
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
	return http.StatusInternalServerError
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidJSON, model.ErrCodeValidation, model.ErrCodeWeakPassword,
		model.ErrCodeSignupRejected, model.ErrCodeMissingUserID:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCourse, model.ErrCodeInvalidScore:
		return http.StatusBadRequest
	case model.ErrCodeInvalidURL, model.ErrCodeSSRFBlocked:
		return http.StatusBadRequest
	case model.ErrCodeMissingToken, model.ErrCodeTokenExpired, model.ErrCodeTokenInvalid:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeProfileNotFound, model.ErrCodeSubmissionNotFound, model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeSubmissionReviewed:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeAuthProviderFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requestDecoder はリクエストボディのJSON解析と構造体タグによる検証を行う。
type requestDecoder struct {
	validate *validator.Validate
}

func newRequestDecoder() *requestDecoder {
	v := validator.New(validator.WithRequiredStructEnabled())
	// エラーメッセージにはGoのフィールド名ではなくJSON名を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestDecoder{validate: v}
}

// decode はボディをdstに読み込む。解析に失敗した場合はINVALID_JSONを返す。
func (d *requestDecoder) decode(w http.ResponseWriter, r *http.Request, dst any) *model.APIError {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.NewInvalidJSONError()
	}
	return nil
}

// check はdstの構造体タグを検証する。違反したフィールドをJSON名で列挙したメッセージを返す。
func (d *requestDecoder) check(dst any) *model.APIError {
	err := d.validate.Struct(dst)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewValidationError(err.Error())
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, validationMessage(fe))
	}
	return model.NewValidationError(strings.Join(msgs, ", "))
}

func validationMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " required"
	case "gte", "min":
		return fmt.Sprintf("%s must be >= %s", name, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be <= %s", name, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters", name, fe.Param())
	default:
		return name + " is invalid"
	}
}

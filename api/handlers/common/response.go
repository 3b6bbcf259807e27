package common

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dpxrk/Pactwise-sub001/internal/common"
)

// HTTPStatus 业务错误码到 HTTP 状态码的映射
func HTTPStatus(code int) int {
	switch code {
	case common.CodeUnauthorized:
		return http.StatusUnauthorized
	case common.CodeForbidden:
		return http.StatusForbidden
	case common.CodeTaskNotFound, common.CodeDocumentNotFound, common.CodePipelineNotFound, common.CodeNotFound:
		return http.StatusNotFound
	case common.CodeWorkerUnavailable, common.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case common.CodeTaskInvalidTransition, common.CodeInvalidRequest:
		return http.StatusBadRequest
	case common.CodeTaskTimedOut:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// Error 按业务错误码输出统一错误响应
func Error(c *gin.Context, err error) {
	code := common.ErrorCode(err)
	c.JSON(HTTPStatus(code), common.ErrorResponse(code, err.Error()))
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, common.ErrorResponse(common.CodeInvalidRequest, message))
}

// OK 成功响应
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, common.SuccessResponse(data))
}

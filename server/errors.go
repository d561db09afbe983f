package server

import (
	"net/http"

	"github.com/Luismorlan/campusfeed/model"
	Logger "github.com/Luismorlan/campusfeed/utils/log"
	"github.com/gin-gonic/gin"
)

var statusOfKind = map[model.ErrorKind]int{
	model.ErrorKindUnauthorized:    http.StatusUnauthorized,
	model.ErrorKindForbidden:       http.StatusForbidden,
	model.ErrorKindNotFound:        http.StatusNotFound,
	model.ErrorKindInvalidArgument: http.StatusBadRequest,
	model.ErrorKindConflict:        http.StatusConflict,
	model.ErrorKindStreamError:     http.StatusServiceUnavailable,
}

// abortWithError maps err onto a status code and the {"code", "msg"} body.
func abortWithError(c *gin.Context, err error) {
	kind := model.KindOf(err)
	status, ok := statusOfKind[kind]
	msg := err.Error()
	if !ok {
		status = http.StatusInternalServerError
		Logger.Log.Errorf("%s %s failed: %s", c.Request.Method, c.FullPath(), err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{
		"code": kind,
		"msg":  msg,
	})
}

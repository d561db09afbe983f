package middlewares

import (
	"net/http"

	"github.com/Luismorlan/campusfeed/identity"
	"github.com/Luismorlan/campusfeed/model"
	Logger "github.com/Luismorlan/campusfeed/utils/log"
	"github.com/gin-gonic/gin"
)

const (
	// Gin context key holding the *model.Identity of the caller.
	IdentityKey = "identity"

	HeaderUserId     = "X-User-Id"
	HeaderUserName   = "X-User-Name"
	HeaderUserAvatar = "X-User-Avatar"
	HeaderUserRole   = "X-User-Role"
)

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code": model.ErrorKindUnauthorized,
		"msg":  msg,
	})
}

// Identify middleware fetches the user token from the Authorization header, or
// from the query field "token" for websocket clients that can't set headers.
// It resolves the token with provider and stores the identity on the context.
// It aborts with 401 on token not provided or token is invalid (wrong token or
// expired).
func Identify(provider identity.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := identity.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			abortUnauthorized(c, "empty token")
			return
		}

		caller, err := provider.Identify(c.Request.Context(), token)
		if err != nil {
			Logger.Log.Debugf("reject token: %s", err)
			abortUnauthorized(c, err.Error())
			return
		}

		c.Set(IdentityKey, caller)
		c.Next()
	}
}

// ByPassAuth trusts the X-User-* headers. Only for local development and
// tests.
func ByPassAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetHeader(HeaderUserId)
		if userId == "" {
			userId = c.Query("user_id")
		}
		if err := model.ValidateId(userId); err != nil {
			abortUnauthorized(c, "missing "+HeaderUserId+" header")
			return
		}
		name := c.GetHeader(HeaderUserName)
		if name == "" {
			name = userId
		}
		c.Set(IdentityKey, &model.Identity{
			UserId:      userId,
			DisplayName: name,
			AvatarUrl:   c.GetHeader(HeaderUserAvatar),
			Role:        model.ParseRole(c.GetHeader(HeaderUserRole)),
		})
		c.Next()
	}
}

// GetIdentity returns the caller stored by Identify or ByPassAuth, nil when
// the request went through neither.
func GetIdentity(c *gin.Context) *model.Identity {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil
	}
	caller, _ := v.(*model.Identity)
	return caller
}

package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"libris-backend/internal/platform/apperr"
)

const (
	ctxIdentityKey  = "auth_identity"
	ctxAuthErrorKey = "auth_error"
)

// Identify resolves the caller's identity best-effort and never aborts.
// Two credential carriers are accepted:
//
//	Authorization: Bearer <token>   (issued by /auth/login)
//	?email=...&password=...         (raw credentials per request)
//
// Gated routes enforce the result via Require*.
func Identify(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h := c.GetHeader("Authorization"); h != "" {
			parts := strings.SplitN(h, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				id, err := svc.ParseToken(strings.TrimSpace(parts[1]))
				if err != nil {
					c.Set(ctxAuthErrorKey, err)
				} else {
					c.Set(ctxIdentityKey, id)
				}
				c.Next()
				return
			}
			c.Set(ctxAuthErrorKey, apperr.Unauthorized("invalid Authorization header"))
			c.Next()
			return
		}

		email := c.Query("email")
		password := c.Query("password")
		if email != "" || password != "" {
			id, err := svc.Authenticate(c.Request.Context(), email, password)
			if err != nil {
				c.Set(ctxAuthErrorKey, err)
			} else {
				c.Set(ctxIdentityKey, id)
			}
		}
		c.Next()
	}
}

// IdentityFrom returns the identity resolved by Identify, if any.
func IdentityFrom(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(ctxIdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok
}

func abortAuth(c *gin.Context) {
	if v, ok := c.Get(ctxAuthErrorKey); ok {
		if err, ok := v.(error); ok {
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
			return
		}
	}
	err := apperr.Unauthorized("credentials required")
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
}

// Require aborts unless the caller is authenticated and pred admits its
// role: 401 without a resolved identity, 403 on insufficient role.
func Require(pred func(Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			abortAuth(c)
			return
		}
		if !pred(id.Role) {
			err := apperr.Forbidden("librarian or administrator access required")
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
			return
		}
		c.Next()
	}
}

func RequireCatalogManager() gin.HandlerFunc { return Require(Role.CanManageCatalog) }
func RequireMemberManager() gin.HandlerFunc  { return Require(Role.CanManageMembers) }
func RequireCirculator() gin.HandlerFunc     { return Require(Role.CanCirculate) }

func RequireAdministrator() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			abortAuth(c)
			return
		}
		if !id.Role.CanAdminister() {
			err := apperr.Forbidden("administrator access required")
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
			return
		}
		c.Next()
	}
}

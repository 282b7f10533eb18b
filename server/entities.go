package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/go-authgate/qbo-bridge/qbo"
)

func (s *Server) companyInfo(c *gin.Context) {
	s.proxy(c, s.deps.API.CompanyInfo())
}

func (s *Server) query(c *gin.Context) {
	sql := strings.TrimSpace(c.Query("sql"))
	if sql == "" {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": "query parameter sql is required"})
		return
	}
	s.proxy(c, s.deps.API.Query(sql))
}

type listQuery struct {
	Where   string `form:"where"`
	OrderBy string `form:"orderby"`
	Start   int    `form:"start,default=1" binding:"gte=1"`
	Max     int    `form:"max,default=100" binding:"gte=1,lte=1000"`
}

func (s *Server) list(e qbo.Entity) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q listQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
			return
		}

		stmt := qbo.Select(e.Type).
			Where(qbo.Raw(q.Where)).
			OrderBy(q.OrderBy).
			Page(q.Start, q.Max)
		s.proxy(c, s.deps.API.Query(stmt.String()))
	}
}

func (s *Server) getByID(e qbo.Entity) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.proxy(c, s.deps.API.GetByID(e.Resource, c.Param("id")))
	}
}

type searchQuery struct {
	Name   string `form:"name"`
	Email  string `form:"email"`
	Phone  string `form:"phone"`
	Prefix bool   `form:"prefix"`
	Max    int    `form:"max,default=1" binding:"gte=1,lte=1000"`
}

func (s *Server) search(entity string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q searchQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
			return
		}

		var conds []qbo.Cond
		if q.Name != "" {
			if q.Prefix {
				conds = append(conds, qbo.Prefix("DisplayName", q.Name))
			} else {
				conds = append(conds, qbo.Eq("DisplayName", q.Name))
			}
		}
		if q.Email != "" {
			conds = append(conds, qbo.Eq("PrimaryEmailAddr.Address", q.Email))
		}
		if q.Phone != "" {
			conds = append(conds, qbo.Eq("PrimaryPhone.FreeFormNumber", q.Phone))
		}

		stmt := qbo.Select(entity).Where(conds...).Page(1, q.Max)
		s.proxy(c, s.deps.API.Query(stmt.String()))
	}
}

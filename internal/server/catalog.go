package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListPackages(c *gin.Context) {
	items, err := s.catalogSvc.ListPackages(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ListModules(c *gin.Context) {
	items, err := s.catalogSvc.ListModules(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ListBundles(c *gin.Context) {
	items, err := s.catalogSvc.ListBundles(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

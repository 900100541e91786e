package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) listResults(c *gin.Context) {
	ids, err := s.deps.Archive.ListResults()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": ids})
}

func (s *Server) getResult(c *gin.Context) {
	result, err := s.deps.Archive.LoadResult(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

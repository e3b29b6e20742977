package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/brotmon/resource"
)

// CatalogHandler serves the read-only species and move catalog.
type CatalogHandler struct {
	res *resource.Loader
}

func NewCatalogHandler(res *resource.Loader) *CatalogHandler {
	return &CatalogHandler{res: res}
}

// Brotmons handles GET /api/catalog/brotmons.
func (h *CatalogHandler) Brotmons(c *gin.Context) {
	list := h.res.Brotmons()
	c.JSON(http.StatusOK, gin.H{"brotmons": list, "count": len(list)})
}

// Brotmon handles GET /api/catalog/brotmons/:id. The species moves are
// expanded inline.
func (h *CatalogHandler) Brotmon(c *gin.Context) {
	b := h.res.BrotmonByID(c.Param("id"))
	if b == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "brotmon not found"})
		return
	}
	moves := make([]*resource.Move, 0, len(b.Moves))
	for _, id := range b.Moves {
		if m := h.res.MoveByID(id); m != nil {
			moves = append(moves, m)
		}
	}
	c.JSON(http.StatusOK, gin.H{"brotmon": b, "moves": moves})
}

// Moves handles GET /api/catalog/moves.
func (h *CatalogHandler) Moves(c *gin.Context) {
	list := h.res.Moves()
	c.JSON(http.StatusOK, gin.H{"moves": list, "count": len(list)})
}

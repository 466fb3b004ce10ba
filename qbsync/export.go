package qbsync

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// exportRowCap bounds one export; narrow the filter for older history.
const exportRowCap = 10000

// ExportLogs streams the filtered operation log as an xlsx workbook.
func (a *API) ExportLogs(c *gin.Context) {
	filter := logFilterFromQuery(c)
	entries, err := a.logs.Query(c.Request.Context(), filter, exportRowCap, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	headers := []string{"ID", "EntityType", "Action", "LocalId", "RemoteId", "Status", "Message", "CreatedAt"}
	for i, h := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheet, cell, h)
	}
	for i, e := range entries {
		row := i + 2
		f.SetCellValue(sheet, "A"+fmt.Sprint(row), e.ID)
		f.SetCellValue(sheet, "B"+fmt.Sprint(row), e.EntityType)
		f.SetCellValue(sheet, "C"+fmt.Sprint(row), e.Action)
		f.SetCellValue(sheet, "D"+fmt.Sprint(row), e.LocalId)
		f.SetCellValue(sheet, "E"+fmt.Sprint(row), e.RemoteId)
		f.SetCellValue(sheet, "F"+fmt.Sprint(row), e.Status)
		f.SetCellValue(sheet, "G"+fmt.Sprint(row), e.Message)
		f.SetCellValue(sheet, "H"+fmt.Sprint(row), e.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=sync-logs.xlsx")
	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write file"})
	}
}

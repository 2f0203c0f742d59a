package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/school-progress/internal/models"
)

const leaderboardSheet = "Leaderboard"

var leaderboardHeader = []any{"Rank", "Student", "Points", "Level", "Level name", "Streak"}

// LeaderboardXLSX - рейтинг группы одним листом.
func LeaderboardXLSX(entries []models.LeaderboardEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", leaderboardSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(leaderboardSheet, "A1", &leaderboardHeader); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	for i, e := range entries {
		row := []any{e.Rank, e.FullName, e.Points, e.Level, e.LevelName, e.Streak}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(leaderboardSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	if err := ApplyDefaultExcelFormatting(f, leaderboardSheet); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

package banner

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/DR-lin-eng/download-speed-tester/internal/tui/styles"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
       ____                          __
  ____/ / /________  ___  ___  ____/ /
 / __  / / ___/ __ \/ _ \/ _ \/ __  /
/ /_/ / (__  ) /_/ /  __/  __/ /_/ /
\__,_/_/____/ .___/\___/\___/\__,_/
           /_/                      `

	return "\n" + style.Render(ascii) + "\n"
}

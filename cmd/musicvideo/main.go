package main

import (
	"github.com/Fato07/runway-music-video-generator/cmd/musicvideo/commands"
)

func main() {
	commands.Execute()
}

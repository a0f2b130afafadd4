package global

import "fmt"

const (
	Version = "0.2.1-devnet"
	Name    = "bee"
)

func BannerString() string {
	return fmt.Sprintf("starting %s node version %s", Name, Version)
}

package client

import (
	"fmt"
	"math/rand"
)

var (
	usernameAdjectives = []string{"fast", "lazy", "cool", "smart", "brave"}
	usernameNouns      = []string{"Tiger", "Eagle", "Lion", "Panda", "Wolf"}
)

// RandomUsername builds a name like "braveWolf1234" for users who did
// not pick one.
func RandomUsername() string {
	return fmt.Sprintf("%s%s%d",
		usernameAdjectives[rand.Intn(len(usernameAdjectives))],
		usernameNouns[rand.Intn(len(usernameNouns))],
		1+rand.Intn(9998))
}

// Copyright 2023 The pubmint Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package app

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pubmint/pubmint/pkg/log"
)

// minKeyBytes matches the smallest key the minter accepts.
const minKeyBytes = 32

// createkeyCmd represents the createkey command
var createkeyCmd = &cobra.Command{
	Use:   "createkey",
	Short: "Create a credential signing key",
	Long: `Create a random symmetric signing key for upload credentials and
write it to a file readable only by its owner. Point the serve command's
--signing-key flag at the file.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := viper.GetString("out")
		size := viper.GetInt("key-bytes")
		if size < minKeyBytes {
			log.Logger.Fatalf("key-bytes must be at least %d", minKeyBytes)
		}

		// Refuse to clobber a key that may already be in use.
		if _, err := os.Stat(out); err == nil {
			log.Logger.Fatalf("%s already exists", out)
		}

		raw := make([]byte, size)
		if _, err := rand.Read(raw); err != nil {
			log.Logger.Fatal(err)
		}

		// Base64 keeps the file text-safe; the encoded bytes are the key.
		encoded := base64.RawStdEncoding.EncodeToString(raw) + "\n"
		if err := os.WriteFile(out, []byte(encoded), 0600); err != nil {
			log.Logger.Fatal(err)
		}
		fmt.Printf("signing key written to %s\n", out)
	},
}

func init() {
	createkeyCmd.PersistentFlags().String("out", "signing.key", "output file for the signing key")
	createkeyCmd.PersistentFlags().Int("key-bytes", 48, "random bytes to draw for the key")
	if err := viper.BindPFlags(createkeyCmd.PersistentFlags()); err != nil {
		log.Logger.Fatal(err)
	}

	rootCmd.AddCommand(createkeyCmd)
}

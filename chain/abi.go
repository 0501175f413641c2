package chain

// FamousJSONsABI is the subset of the FamousJSONs token ABI the backend uses:
// the ERC-721 Transfer event, the two pricing views and the payable mint.
const FamousJSONsABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "from",    "type": "address"},
			{"indexed": true, "name": "to",      "type": "address"},
			{"indexed": true, "name": "tokenId", "type": "uint256"}
		],
		"name": "Transfer",
		"type": "event"
	},
	{
		"inputs": [],
		"name": "lastMintBlock",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getCurrentMintPrice",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "to",      "type": "address"},
			{"name": "tokenId", "type": "uint256"}
		],
		"name": "mintToken",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	}
]`
